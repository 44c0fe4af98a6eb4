// Package runtime orchestrates the process lifecycle: dependency-ordered
// startup, the single cancellation signal the main flow suspends on, and
// idempotent reverse-order shutdown.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tgforge/tgforge/internal/logger"
	"github.com/tgforge/tgforge/pkg/ai"
	"github.com/tgforge/tgforge/pkg/api"
	"github.com/tgforge/tgforge/pkg/bot"
	"github.com/tgforge/tgforge/pkg/bot/support"
	"github.com/tgforge/tgforge/pkg/config"
	"github.com/tgforge/tgforge/pkg/locale"
	"github.com/tgforge/tgforge/pkg/metrics"
	"github.com/tgforge/tgforge/pkg/migrate"
	"github.com/tgforge/tgforge/pkg/notify"
	"github.com/tgforge/tgforge/pkg/store"
)

// FrontEnd is the primary front-end lifecycle contract the runtime
// drives. Teardown methods must tolerate skipped startup steps.
type FrontEnd interface {
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	StartPolling(ctx context.Context) error
	StopPolling()
	Stop()
	Shutdown()
	Username() string
	SendTo(chatID int64, text string) error
}

// SecondaryChannel is the optional escalation channel lifecycle contract.
type SecondaryChannel interface {
	Setup(ctx context.Context) error
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	SendNotification(text string) bool
}

// Runtime owns the lifecycle phase and every managed subsystem.
type Runtime struct {
	cfg *config.Config

	phase        phaseValue
	cancelCh     chan struct{}
	cancelOnce   sync.Once
	shuttingDown atomic.Bool

	store     *store.Store
	migrator  *migrate.Migrator
	locales   *locale.Manager
	provider  ai.Provider
	frontEnd  FrontEnd
	secondary SecondaryChannel
	sink      notify.Sink

	botMetrics *metrics.BotMetrics

	auxCancel context.CancelFunc
	auxWg     sync.WaitGroup

	// factories, swapped in tests
	newFrontEnd  func(deps bot.Dependencies) (FrontEnd, error)
	newSecondary func() (SecondaryChannel, error)
}

// New creates a runtime for the loaded configuration.
func New(cfg *config.Config) *Runtime {
	r := &Runtime{
		cfg:      cfg,
		cancelCh: make(chan struct{}),
		sink:     notify.NopSink{},
	}

	r.newFrontEnd = func(deps bot.Dependencies) (FrontEnd, error) {
		return bot.New(bot.Config{
			Token:              cfg.Bot.Token,
			Name:               cfg.Bot.Name,
			Description:        cfg.Bot.Description,
			PollTimeout:        cfg.Bot.PollTimeout,
			DropPendingUpdates: cfg.Bot.DropPendingUpdates,
			SupportedLanguages: cfg.Locales.Supported,
		}, deps)
	}
	r.newSecondary = func() (SecondaryChannel, error) {
		return support.New(support.Config{
			Token:  cfg.Support.Token,
			ChatID: cfg.Support.ChatID,
		})
	}

	return r
}

// Phase returns the current lifecycle phase.
func (r *Runtime) Phase() Phase {
	return r.phase.get()
}

// Cancel sets the cancellation signal. Safe from any goroutine, exactly
// once takes effect; the main flow suspended in Run resumes and shuts
// down.
func (r *Runtime) Cancel() {
	r.cancelOnce.Do(func() {
		close(r.cancelCh)
	})
}

// Done exposes the cancellation signal.
func (r *Runtime) Done() <-chan struct{} {
	return r.cancelCh
}

// Setup initializes subsystems in dependency order: schema, store,
// stateless collaborators, secondary channel, then the primary
// front-end. Fails fast; the caller is responsible for invoking
// Shutdown to release whatever did initialize.
func (r *Runtime) Setup(ctx context.Context) error {
	r.phase.set(PhaseConfiguring)
	logger.Info("Starting setup", "bot", r.cfg.Bot.Name)

	if r.cfg.Metrics.Enabled {
		metrics.InitRegistry()
		r.botMetrics = metrics.NewBotMetrics()
	}

	var err error
	r.locales, err = locale.New(r.cfg.Locales.Path, r.cfg.Locales.Default)
	if err != nil {
		return fmt.Errorf("locale setup failed: %w", err)
	}

	r.migrator, err = migrate.New(migrate.Config{
		Database: r.cfg.Database,
		Path:     r.cfg.Migrations.Path,
		Timeout:  r.cfg.Migrations.Timeout,
	})
	if err != nil {
		return fmt.Errorf("migrator setup failed: %w", err)
	}

	ready, err := r.migrator.EnsureDatabaseReady(ctx, r.cfg.Migrations.AutoMigrate)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if !ready {
		return fmt.Errorf("database schema is not ready; run 'tgforge migrate up' or enable auto_migrate")
	}
	r.botMetrics.SetSchemaRevision(r.migrator.CurrentRevision(ctx))

	r.store, err = store.New(&r.cfg.Database)
	if err != nil {
		return fmt.Errorf("store setup failed: %w", err)
	}
	if err := r.store.Setup(ctx); err != nil {
		return fmt.Errorf("store setup failed: %w", err)
	}

	if r.cfg.HasAI() {
		r.provider, err = ai.NewOpenRouter(ai.OpenRouterConfig{
			APIKey:       r.cfg.AI.APIKey,
			Model:        r.cfg.AI.Model,
			BaseURL:      r.cfg.AI.BaseURL,
			SystemPrompt: r.cfg.AI.SystemPrompt,
			Timeout:      r.cfg.AI.Timeout,
		})
		if err != nil {
			return fmt.Errorf("ai provider setup failed: %w", err)
		}
	}

	if r.cfg.HasSupportBot() {
		r.secondary, err = r.newSecondary()
		if err != nil {
			return fmt.Errorf("support channel setup failed: %w", err)
		}
		if err := r.secondary.Setup(ctx); err != nil {
			return fmt.Errorf("support channel setup failed: %w", err)
		}
	}

	deps := bot.Dependencies{
		Store:    r.store,
		Locales:  r.locales,
		Provider: r.provider,
		Metrics:  r.botMetrics,
	}
	if r.secondary != nil {
		deps.Support = r.secondary
	}

	r.frontEnd, err = r.newFrontEnd(deps)
	if err != nil {
		return fmt.Errorf("front-end setup failed: %w", err)
	}
	if err := r.frontEnd.Initialize(ctx); err != nil {
		return fmt.Errorf("front-end setup failed: %w", err)
	}

	if r.cfg.HasMaintainer() {
		r.sink = notify.NewFrontEndSink(r.frontEnd, r.cfg.Maintainer.ChatID)
	}

	logger.Info("Setup complete")
	return nil
}

// Run executes the full lifecycle: setup, auxiliary servers, signal
// registration, polling, then suspends on the cancellation signal and
// shuts down. Shutdown is guaranteed regardless of how far startup
// progressed. Expected termination (signal) returns nil; setup and
// start failures propagate after shutdown completes.
func (r *Runtime) Run(ctx context.Context) error {
	bridge := NewSignalBridge()

	defer func() {
		bridge.Unregister()
		r.Shutdown(ctx)
	}()

	if err := r.Setup(ctx); err != nil {
		logger.Error("Setup failed", "error", err)
		return err
	}

	r.startAuxServers()
	bridge.Register(r)

	if err := r.frontEnd.Start(ctx); err != nil {
		return fmt.Errorf("failed to start front-end: %w", err)
	}

	r.sink.Send(ctx, fmt.Sprintf("%s started", r.cfg.Bot.Name))

	if r.secondary != nil {
		if err := r.secondary.Start(ctx); err != nil {
			return fmt.Errorf("failed to start support channel: %w", err)
		}
	}

	if err := r.frontEnd.StartPolling(ctx); err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	r.phase.set(PhaseRunning)
	logger.Info("Bot is running", "username", r.frontEnd.Username())

	// The main flow suspends exactly once, here.
	select {
	case <-r.cancelCh:
	case <-ctx.Done():
		r.Cancel()
	}

	return nil
}

// startAuxServers launches the admin API and metrics servers when
// configured. They stop during Shutdown.
func (r *Runtime) startAuxServers() {
	auxCtx, cancel := context.WithCancel(context.Background())
	r.auxCancel = cancel

	if r.cfg.API.Enabled {
		server := api.NewServer(r.cfg.API, api.Deps{
			Store:    r.store,
			Migrator: r.migrator,
			Phase:    func() string { return r.Phase().String() },
			BotName:  r.cfg.Bot.Name,
			Username: func() string { return r.frontEnd.Username() },
			AI:       r.cfg.HasAI(),
		})
		r.auxWg.Add(1)
		go func() {
			defer r.auxWg.Done()
			if err := server.Start(auxCtx); err != nil {
				logger.Error("API server exited", "error", err)
			}
		}()
	}

	if r.cfg.Metrics.Enabled {
		if server := metrics.NewServer(r.cfg.Metrics.Port); server != nil {
			r.auxWg.Add(1)
			go func() {
				defer r.auxWg.Done()
				if err := server.Start(auxCtx); err != nil {
					logger.Error("Metrics server exited", "error", err)
				}
			}()
		}
	}
}

// Shutdown tears down subsystems in reverse startup order. Idempotent:
// the second caller returns immediately. Every step is independently
// guarded; no teardown failure stops the rest, and the store is closed
// even when later-constructed subsystems never existed.
func (r *Runtime) Shutdown(ctx context.Context) {
	if !r.shuttingDown.CompareAndSwap(false, true) {
		logger.Debug("Shutdown already in progress")
		return
	}

	r.phase.set(PhaseShuttingDown)
	logger.Info("Shutting down", "bot", r.cfg.Bot.Name)

	// Unblock Run when shutdown was triggered by an error path
	r.Cancel()

	r.sink.Send(ctx, fmt.Sprintf("%s stopping", r.cfg.Bot.Name))

	if r.secondary != nil && r.secondary.IsRunning() {
		r.step("support channel", func() { r.secondary.Stop() })
	}

	if r.frontEnd != nil {
		r.step("polling", r.frontEnd.StopPolling)
		r.step("front-end tasks", r.frontEnd.Stop)
		r.step("front-end", r.frontEnd.Shutdown)
	}

	if r.auxCancel != nil {
		r.step("auxiliary servers", func() {
			r.auxCancel()
			r.auxWg.Wait()
		})
	}

	if r.store != nil {
		r.step("store", func() {
			if err := r.store.Close(); err != nil {
				logger.Warn("Failed to close store", "error", err)
			}
		})
	}

	r.phase.set(PhaseStopped)
	logger.Info("Shutdown complete")
}

// step runs one teardown action, absorbing panics so a single failing
// subsystem cannot block the rest of the sequence.
func (r *Runtime) step(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Teardown step panicked", "step", name, "panic", rec)
		}
	}()

	logger.Info("Stopping " + name)
	fn()
	logger.Info("Stopped " + name)
}

// MigrationStatus reports schema state. Safe at any phase after Setup.
func (r *Runtime) MigrationStatus(ctx context.Context) (*migrate.Status, error) {
	if r.migrator == nil {
		return nil, fmt.Errorf("runtime not set up")
	}
	return r.migrator.Status(ctx)
}
