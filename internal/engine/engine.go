// Package engine abstracts how orchestrator goal executions are scheduled
// as tasks: an in-memory adapter spawns a goroutine per call, a Temporal
// adapter runs each as a durable, replay-safe workflow.
package engine

import "context"

// Task is one unit of work the engine schedules: a goal's end-to-end
// execution. Task implementations must be safe to retry from the start,
// since the Temporal adapter may replay them.
type Task func(ctx context.Context) (any, error)

// Engine schedules and awaits Tasks.
type Engine interface {
	// Run schedules task and blocks until it completes, returning its result
	// or error. name identifies the task for tracing/durable-workflow
	// bookkeeping.
	Run(ctx context.Context, name string, task Task) (any, error)
}
