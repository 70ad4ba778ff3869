package engine

import "context"

// InMemory runs each task as a plain goroutine-backed call, the default
// engine for tests, `demo`, and single-process `serve` deployments.
type InMemory struct{}

var _ Engine = InMemory{}

// NewInMemory returns the in-memory engine.
func NewInMemory() InMemory { return InMemory{} }

// Run executes task on its own goroutine and waits for it to finish,
// propagating ctx cancellation.
func (InMemory) Run(ctx context.Context, _ string, task Task) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := task(ctx)
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.result, o.err
	}
}
