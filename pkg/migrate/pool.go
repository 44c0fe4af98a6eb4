package migrate

import (
	"context"
	"fmt"
)

// Pool bounds concurrent blocking engine calls.
//
// The migration engine drives file I/O and long-running DDL through
// synchronous calls. Running them on dedicated goroutines keeps the
// orchestrator's control flow responsive, and the semaphore bounds
// resource use when CLI-triggered and runtime-triggered migrations
// overlap.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool allowing up to size concurrent calls.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Run executes fn on a worker goroutine and waits for it to finish.
//
// Acquiring a slot and waiting for the result both respect ctx. When ctx
// is cancelled mid-call the worker keeps running to completion in the
// background (the engine's own bookkeeping lock stays consistent) but Run
// returns ctx.Err() immediately.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("migration worker unavailable: %w", ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-p.sem }()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
