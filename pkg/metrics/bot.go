package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BotMetrics instruments update handling.
//
// A nil *BotMetrics is valid; every method is a no-op on it, so callers
// never need to branch on whether metrics are enabled.
type BotMetrics struct {
	updatesTotal    *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlerErrors   *prometheus.CounterVec
	knownUsers      prometheus.Gauge
	schemaRevision  *prometheus.GaugeVec
}

// NewBotMetrics creates the bot instrumentation.
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBotMetrics() *BotMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &BotMetrics{
		updatesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgforge_updates_total",
				Help: "Total number of updates processed by handler",
			},
			[]string{"handler"},
		),
		handlerDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tgforge_handler_duration_seconds",
				Help:    "Duration of update handling by handler",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"handler"},
		),
		handlerErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgforge_handler_errors_total",
				Help: "Total number of handler failures by handler",
			},
			[]string{"handler"},
		),
		knownUsers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tgforge_known_users",
				Help: "Number of users in the store",
			},
		),
		schemaRevision: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tgforge_schema_revision",
				Help: "Current schema revision (1 for the active revision label)",
			},
			[]string{"revision"},
		),
	}
}

// ObserveUpdate records one handled update.
func (m *BotMetrics) ObserveUpdate(handler string, duration time.Duration) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(handler).Inc()
	m.handlerDuration.WithLabelValues(handler).Observe(duration.Seconds())
}

// ObserveError records one handler failure.
func (m *BotMetrics) ObserveError(handler string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(handler).Inc()
}

// SetKnownUsers updates the user count gauge.
func (m *BotMetrics) SetKnownUsers(count int64) {
	if m == nil {
		return
	}
	m.knownUsers.Set(float64(count))
}

// SetSchemaRevision marks the active schema revision.
func (m *BotMetrics) SetSchemaRevision(revision string) {
	if m == nil || revision == "" {
		return
	}
	m.schemaRevision.Reset()
	m.schemaRevision.WithLabelValues(revision).Set(1)
}
