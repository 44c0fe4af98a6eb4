package runtime

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/tgforge/tgforge/internal/logger"
)

// SignalBridge connects termination signals to the runtime's
// cancellation signal. Delivery never mutates runtime state directly;
// it only sets the thread-safe cancellation flag, and the main flow
// performs the actual shutdown.
type SignalBridge struct {
	ch   chan os.Signal
	done chan struct{}
}

// NewSignalBridge creates an unregistered bridge.
func NewSignalBridge() *SignalBridge {
	return &SignalBridge{
		ch:   make(chan os.Signal, 2),
		done: make(chan struct{}),
	}
}

// Register installs handlers for SIGINT and SIGTERM. The first signal
// cancels the runtime; repeats while shutdown is in progress are logged
// and ignored.
func (s *SignalBridge) Register(rt *Runtime) {
	signal.Notify(s.ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-s.ch:
				logger.Info("Received signal", "signal", sig.String())
				rt.Cancel()
			case <-s.done:
				return
			}
		}
	}()

	logger.Debug("Signal handlers registered")
}

// Unregister removes the handlers and stops the dispatch goroutine.
// Safe to call when Register never ran.
func (s *SignalBridge) Unregister() {
	signal.Stop(s.ch)
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
