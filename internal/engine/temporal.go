// Package engine's Temporal adapter runs each goal execution as a durable
// workflow, so a process restart mid-goal resumes from Temporal's replay
// history instead of losing the in-flight execution (spec §6 **[EXPANSION]**).
package engine

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/workflow"
)

// defaultActivityTimeout bounds a single goal-execution activity; goals that
// genuinely need longer should be decomposed by C5 rather than raising this.
const defaultActivityTimeout = 5 * time.Minute

// Temporal runs tasks as Temporal workflows on a configured task queue.
type Temporal struct {
	client    client.Client
	taskQueue string
}

var _ Engine = (*Temporal)(nil)

// NewTemporal wraps an already-configured Temporal client.
func NewTemporal(c client.Client, taskQueue string) *Temporal {
	return &Temporal{client: c, taskQueue: taskQueue}
}

// NewTemporalClientOptions builds client.Options for hostPort/namespace with
// the OpenTelemetry tracing interceptor installed, so workflow and activity
// spans for goal executions land in the same trace as the rest of the
// engine's telemetry.Bundle output. Callers pass the result to client.Dial.
func NewTemporalClientOptions(hostPort, namespace string) (client.Options, error) {
	tracingInterceptor, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{})
	if err != nil {
		return client.Options{}, fmt.Errorf("engine/temporal: build tracing interceptor: %w", err)
	}
	return client.Options{
		HostPort:     hostPort,
		Namespace:    namespace,
		Interceptors: []interceptor.ClientInterceptor{tracingInterceptor},
	}, nil
}

// Run starts name as a Temporal workflow and blocks on its result. task is
// neither sent to the workflow nor called: goalExecutionWorkflow runs the
// activity a worker registered under RunGoalActivityName, passing name, and
// returns that activity's result.
func (t *Temporal) Run(ctx context.Context, name string, task Task) (any, error) {
	options := client.StartWorkflowOptions{
		ID:        name,
		TaskQueue: t.taskQueue,
	}
	run, err := t.client.ExecuteWorkflow(ctx, options, goalExecutionWorkflow, name)
	if err != nil {
		return nil, fmt.Errorf("engine/temporal: start workflow: %w", err)
	}
	var result any
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("engine/temporal: workflow result: %w", err)
	}
	return result, nil
}

// goalExecutionWorkflow delegates to the runGoalActivity registered by the
// worker process; the orchestrator's actual Execute call lives in that
// activity so it can touch non-deterministic collaborators (LLM calls,
// sandboxed tool execution) outside workflow code, per Temporal's
// determinism rules.
func goalExecutionWorkflow(ctx workflow.Context, goalName string) (any, error) {
	ao := workflow.ActivityOptions{StartToCloseTimeout: workflowActivityTimeout}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var result any
	err := workflow.ExecuteActivity(ctx, runGoalActivityName, goalName).Get(ctx, &result)
	return result, err
}

const (
	runGoalActivityName     = "RunGoal"
	workflowActivityTimeout = defaultActivityTimeout
)

// RunGoalActivityName is the activity name workers must register a handler
// under for the Temporal engine to dispatch goal executions.
const RunGoalActivityName = runGoalActivityName
