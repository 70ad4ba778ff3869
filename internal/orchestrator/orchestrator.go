// Package orchestrator implements the goal-execution pipeline (C7): cache
// lookup, pattern lookup, intent classification, tool selection, parameter
// synthesis, sandboxed execution, and write-back (spec §4.1).
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradrix/dendrite/internal/discovery"
	"github.com/gradrix/dendrite/internal/learner"
	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/recovery"
	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/sandbox"
	"github.com/gradrix/dendrite/internal/schema"
	"github.com/gradrix/dendrite/internal/telemetry"
)

// Result is what Execute returns to the caller.
type Result struct {
	GoalExecutionID string
	Success         bool
	Output          any
	Error           *model.ErrorSummary
	UsedCache       bool
	Recovered       bool
	Duration        time.Duration
}

// Policy bounds error recovery (spec §4.2), threaded through from config.
type Policy = recovery.Policy

// Orchestrator executes goals end to end.
type Orchestrator struct {
	store       relstore.Store
	registry    *registry.Registry
	discovery   *discovery.Discovery
	cache       *pathwaycache.Cache
	learner     *learner.Learner
	sandbox     sandbox.Runtime
	schema      *schema.Validator
	llm         llmclient.Backend
	telemetry   telemetry.Bundle
	policy      Policy
	toolTimeout time.Duration
}

// New builds an Orchestrator over its collaborators.
func New(
	store relstore.Store,
	reg *registry.Registry,
	disc *discovery.Discovery,
	cache *pathwaycache.Cache,
	learn *learner.Learner,
	runtime sandbox.Runtime,
	validator *schema.Validator,
	llm llmclient.Backend,
	tel telemetry.Bundle,
	policy Policy,
	toolTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store: store, registry: reg, discovery: disc, cache: cache, learner: learn,
		sandbox: runtime, schema: validator, llm: llm, telemetry: tel, policy: policy,
		toolTimeout: toolTimeout,
	}
}

// Execute runs the full seven-step pipeline for goalText (spec §4.1).
func (o *Orchestrator) Execute(ctx context.Context, goalText string) (Result, error) {
	started := time.Now()
	ctx, span := o.telemetry.Tracer.Start(ctx, "orchestrator.Execute")
	defer span.End()

	execID := uuid.NewString()
	var trace []model.TraceStep
	var toolsUsed []model.ToolName
	toolHashes := make(map[model.ToolName]string)
	usedCache := false
	recovered := false

	goalEmbedding, err := o.llm.Embed(ctx, goalText)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: embed goal: %w", err)
	}

	// Step 1: cached pathway lookup.
	if pathway, ok := o.cache.Find(ctx, goalEmbedding); ok && o.pathwayStillValid(ctx, pathway) {
		usedCache = true
		output, success, errSummary := o.replay(ctx, pathway)
		o.cache.RecordOutcome(pathway.ID, success)
		return o.finish(ctx, execID, goalText, started, output, success, errSummary, usedCache, recovered)
	}

	// Step 2: decomposition pattern lookup (informs subgoals; single-tool
	// goals proceed with goalText itself as the only subgoal).
	subgoals := []string{goalText}
	if suggestion, ok, err := o.learner.Suggest(ctx, goalText); err == nil && ok && suggestion.Confidence > 0 {
		subgoals = suggestion.Subgoals
	}

	var lastOutput any
	success := true
	var errSummary *model.ErrorSummary

	for _, subgoal := range subgoals {
		// Step 3: intent classification informs candidate search terms;
		// the stub/LLM backend's completion doubles as an intent label.
		intent, err := o.llm.Complete(ctx, llmclient.Prompt{
			System: "Classify the user's intent in one short phrase.",
			User:   subgoal,
		})
		if err != nil {
			intent = subgoal
		}

		// Step 4: tool candidate discovery. A goal discovery can't match to
		// any tool is routed through the same recovery state machine as a
		// tool-invocation failure, so it is classified (ClassImpossible) and
		// reported through C6 instead of short-circuiting around it.
		candidates, discErr := o.discovery.Find(ctx, intent, 5)

		var outcome recovery.Outcome
		if discErr != nil || len(candidates) == 0 {
			outcome = recovery.Run(ctx, o.policy, "",
				func(context.Context, model.ToolName) error { return errNoCandidates },
				o.classify,
				func(context.Context, []model.ToolName) (model.ToolName, bool) { return "", false },
			)
		} else {
			outcome = recovery.Run(ctx, o.policy, candidates[0].Tool,
				func(ctx context.Context, tool model.ToolName) error {
					return o.invokeTool(ctx, execID, tool, subgoal, &trace, &toolsUsed, toolHashes, &lastOutput)
				},
				o.classify,
				func(ctx context.Context, failed []model.ToolName) (model.ToolName, bool) {
					return nextCandidate(candidates, failed)
				},
			)
		}

		if !outcome.Success {
			success = false
			errSummary = &model.ErrorSummary{Kind: string(outcome.LastClass), Message: summarize(outcome.LastError)}
			break
		}
		if outcome.Attempts > 1 {
			recovered = true
		}
	}

	// Step 6/7: pass through the per-tool sequential region for every tool
	// touched (nothing is written inside it), then store a fresh pathway on
	// success.
	for _, tool := range toolsUsed {
		tool := tool
		_ = o.store.WithToolLock(ctx, tool, func(ctx context.Context) error {
			return nil // statistics are recomputed by the hourly task (§4.9), not on the hot path.
		})
	}
	if success && len(toolsUsed) > 0 {
		o.cache.Store(ctx, goalText, goalEmbedding, trace, toolsUsed, toolHashes, true)
	}
	if len(subgoals) > 0 {
		_ = o.learner.Store(ctx, goalText, "", subgoals, success, time.Since(started), toolsUsed)
	}

	return o.finish(ctx, execID, goalText, started, lastOutput, success, errSummary, usedCache, recovered)
}

func (o *Orchestrator) invokeTool(ctx context.Context, execID string, tool model.ToolName, subgoal string, trace *[]model.TraceStep, toolsUsed *[]model.ToolName, toolHashes map[model.ToolName]string, lastOutput *any) error {
	entry, ok := o.registry.Get(tool)
	if !ok {
		err := fmt.Errorf("orchestrator: tool %q not registered", tool)
		o.recordFailedInvocation(ctx, execID, tool, nil, "load_error", err.Error())
		return err
	}

	// Step 5: parameter synthesis via the LLM, validated against the tool's
	// declared schema before the sandbox ever sees it.
	paramsText, err := o.llm.Complete(ctx, llmclient.Prompt{
		System: "Produce a JSON object of parameters for the tool call.",
		User:   subgoal,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: synthesize params: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(paramsText), &params); err != nil {
		params = map[string]any{"input": subgoal}
	}
	if entry.Definition.ParamSchema != nil {
		if err := o.schema.Register(string(tool), entry.Definition.ParamSchema); err != nil {
			// The tool's own declared schema fails to register: a defect in
			// the deployed version itself, not in this call's parameters.
			o.recordFailedInvocation(ctx, execID, tool, params, "signature_mismatch", err.Error())
			return fmt.Errorf("%w: %w", errParameterMismatch, err)
		}
		if err := o.schema.Validate(string(tool), params); err != nil {
			o.recordFailedInvocation(ctx, execID, tool, params, "parameter_mismatch", err.Error())
			return fmt.Errorf("%w: %w", errParameterMismatch, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()
	result, err := o.sandbox.Run(runCtx, sandbox.Invocation{Tool: string(tool), Params: params})

	inv := model.ToolInvocation{
		ID: uuid.NewString(), GoalExecutionID: execID, Tool: tool, Params: params,
		StartedAt: time.Now(),
	}
	if err != nil || !result.Success {
		msg := result.ErrorMsg
		if msg == "" && err != nil {
			msg = err.Error()
		}
		inv.Error = &model.ErrorSummary{Kind: "tool_failure", Message: msg}
		_ = o.store.SaveToolInvocations(ctx, []model.ToolInvocation{inv})
		if err != nil {
			return err
		}
		return fmt.Errorf("orchestrator: tool %q failed: %s", tool, msg)
	}

	inv.Success = true
	inv.Output = result.Output
	_ = o.store.SaveToolInvocations(ctx, []model.ToolInvocation{inv})

	*toolsUsed = append(*toolsUsed, tool)
	toolHashes[tool] = entry.Definition.ContentHash
	*trace = append(*trace, model.TraceStep{Tool: tool, Params: params, ResultSummary: summarizeOutput(result.Output)})
	*lastOutput = result.Output
	return nil
}

// recordFailedInvocation saves a ToolInvocation for a failure that never
// reaches the sandbox (registry miss, schema registration/validation), so
// the deployment monitor's immediate tier can see load-time and
// signature-mismatch failures the same way it sees sandbox-level ones.
func (o *Orchestrator) recordFailedInvocation(ctx context.Context, execID string, tool model.ToolName, params map[string]any, kind, message string) {
	_ = o.store.SaveToolInvocations(ctx, []model.ToolInvocation{{
		ID: uuid.NewString(), GoalExecutionID: execID, Tool: tool, Params: params,
		StartedAt: time.Now(), Error: &model.ErrorSummary{Kind: kind, Message: message},
	}})
}

// classify is the default heuristic classifier: a discovery miss is
// impossible (no candidate tool exists to retry or fall back to),
// parameter-mismatch errors are tagged explicitly by invokeTool, everything
// else starting with "tool %q not registered" is wrong_tool, and anything
// produced by a context deadline is transient. All other errors are treated
// as transient too, since the sandbox itself cannot distinguish a flaky tool
// from anything else without a more specific signal.
func (o *Orchestrator) classify(_ context.Context, tool model.ToolName, err error) recovery.ErrorClass {
	if err == nil {
		return recovery.ClassTransient
	}
	switch {
	case isNoCandidates(err):
		return recovery.ClassImpossible
	case isParameterMismatch(err):
		return recovery.ClassParameterMismatch
	case isNotRegistered(err):
		return recovery.ClassWrongTool
	case errors.Is(err, context.DeadlineExceeded):
		return recovery.ClassTransient
	default:
		return recovery.ClassTransient
	}
}

// pathwayStillValid reports whether every tool a cached pathway depends on is
// still registered at the content hash recorded when the pathway was stored.
// On a mismatch it invalidates the stale pathway immediately (spec §4.1 step
// 1: "on mismatch, invalidate the pathway and continue") so the same pathway
// converges to permanently invalid instead of being found and rejected again
// on every future matching goal.
func (o *Orchestrator) pathwayStillValid(ctx context.Context, pathway model.Pathway) bool {
	valid := true
	for tool, hash := range pathway.ToolHashAtStore {
		if o.registry.HasHash(tool, hash) {
			continue
		}
		valid = false
		if entry, ok := o.registry.Get(tool); ok {
			o.cache.InvalidateByHash(ctx, tool, entry.Definition.ContentHash)
		} else {
			o.cache.InvalidateByTool(ctx, tool)
		}
	}
	return valid
}

func (o *Orchestrator) replay(ctx context.Context, pathway model.Pathway) (any, bool, *model.ErrorSummary) {
	var output any
	for _, step := range pathway.Trace {
		runCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
		result, err := o.sandbox.Run(runCtx, sandbox.Invocation{Tool: string(step.Tool), Params: step.Params})
		cancel()
		if err != nil || !result.Success {
			msg := result.ErrorMsg
			if msg == "" && err != nil {
				msg = err.Error()
			}
			return nil, false, &model.ErrorSummary{Kind: "cached_pathway_failure", Message: msg}
		}
		output = result.Output
	}
	return output, true, nil
}

func (o *Orchestrator) finish(ctx context.Context, execID, goalText string, started time.Time, output any, success bool, errSummary *model.ErrorSummary, usedCache, recovered bool) (Result, error) {
	exec := model.GoalExecution{
		ID: execID, Text: goalText, Success: success, Duration: time.Since(started),
		Error: errSummary, CreatedAt: started, UsedCache: usedCache, Recovered: recovered,
	}
	if err := o.store.SaveGoalExecution(ctx, exec); err != nil {
		return Result{}, fmt.Errorf("orchestrator: save goal execution: %w", err)
	}
	return Result{
		GoalExecutionID: execID, Success: success, Output: output, Error: errSummary,
		UsedCache: usedCache, Recovered: recovered, Duration: exec.Duration,
	}, nil
}

func nextCandidate(candidates []discovery.Candidate, tried []model.ToolName) (model.ToolName, bool) {
	triedSet := make(map[model.ToolName]struct{}, len(tried))
	for _, t := range tried {
		triedSet[t] = struct{}{}
	}
	for _, c := range candidates {
		if _, done := triedSet[c.Tool]; !done {
			return c.Tool, true
		}
	}
	return "", false
}

func summarize(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func summarizeOutput(output any) string {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	if len(data) > 200 {
		return string(data[:200]) + "..."
	}
	return string(data)
}
