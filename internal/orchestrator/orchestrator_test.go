package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/discovery"
	"github.com/gradrix/dendrite/internal/learner"
	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/orchestrator"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/recovery"
	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/relstore/memstore"
	"github.com/gradrix/dendrite/internal/sandbox"
	"github.com/gradrix/dendrite/internal/schema"
	"github.com/gradrix/dendrite/internal/telemetry"
	"github.com/gradrix/dendrite/internal/toolplugin"
	"github.com/gradrix/dendrite/internal/vectorindex"
)

// buildStack wires a full in-memory instance of every C1-C7 collaborator
// around a single "calculator.add" tool, mirroring how cmd/dendrite's app
// wires the production stack but entirely in-process so it needs no Docker.
func buildStack(t *testing.T, responses map[string]string, fn sandbox.ToolFunc, attempts int) (*orchestrator.Orchestrator, *registry.Registry, *discovery.Discovery) {
	orch, reg, disc, _ := buildStackWithSource(t, responses, fn, attempts)
	return orch, reg, disc
}

// buildStackWithSource is buildStack plus the FactorySource handle, for tests
// that need to mutate a tool's source (and content hash) after the stack is
// already wired, the way an improvement-engine redeploy would.
func buildStackWithSource(t *testing.T, responses map[string]string, fn sandbox.ToolFunc, attempts int) (*orchestrator.Orchestrator, *registry.Registry, *discovery.Discovery, *toolplugin.FactorySource) {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	index := vectorindex.NewMemIndex()
	llm := llmclient.NewStub(32, responses)
	source := toolplugin.NewFactorySource([]toolplugin.FactoryEntry{
		{Source: "v1", Definition: toolplugin.Definition{
			Name:        "calculator.add",
			Description: "adds two numbers together",
		}},
	})
	reg := registry.New(source)
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)

	disc := discovery.New(index, store, reg, llm)
	require.NoError(t, disc.IndexTool(ctx, "calculator.add", "adds two numbers together"))

	cache := pathwaycache.New(0.9, nil)
	learn := learner.New(store, llm, 0.8)
	sb := sandbox.NewInProcess(map[string]sandbox.ToolFunc{"calculator.add": fn})
	validator := schema.NewValidator()

	orch := orchestrator.New(store, reg, disc, cache, learn, sb, validator, llm, telemetry.NewNoop(),
		recovery.Policy{RetryCap: attempts, FallbackCap: 1, BaseBackoff: time.Millisecond, BackoffFactor: 2},
		time.Second,
	)
	return orch, reg, disc, source
}

func TestExecuteSucceedsAndPopulatesCacheOnFirstRun(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := buildStack(t, map[string]string{"add": `{"a":1,"b":2}`}, func(context.Context, map[string]any) (any, error) {
		return 3, nil
	}, 1)

	result, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.UsedCache, "first execution of a novel goal must not be a cache hit")
}

func TestExecuteSecondIdenticalGoalHitsCache(t *testing.T) {
	ctx := context.Background()
	orch, _, _ := buildStack(t, map[string]string{"add": `{"a":1,"b":2}`}, func(context.Context, map[string]any) (any, error) {
		return 3, nil
	}, 1)

	first, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.UsedCache, "an identical goal immediately after a success should hit the pathway cache")
}

func TestExecuteRecoversFromTransientToolFailure(t *testing.T) {
	ctx := context.Background()
	calls := 0
	orch, _, _ := buildStack(t, map[string]string{"add": `{"a":1,"b":2}`}, func(context.Context, map[string]any) (any, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("flaky sandbox")
		}
		return 3, nil
	}, 2)

	result, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Recovered, "a goal that only succeeded after a retry must be marked recovered")
}

func TestExecuteFailsWhenNoCandidatesMatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	index := vectorindex.NewMemIndex() // deliberately left empty: no tools indexed
	llm := llmclient.NewStub(32, nil)
	reg := registry.New(toolplugin.NewFactorySource(nil))
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)

	disc := discovery.New(index, store, reg, llm)
	cache := pathwaycache.New(0.9, nil)
	learn := learner.New(store, llm, 0.8)
	sb := sandbox.NewInProcess(nil)
	validator := schema.NewValidator()
	orch := orchestrator.New(store, reg, disc, cache, learn, sb, validator, llm, telemetry.NewNoop(),
		recovery.Policy{RetryCap: 1, FallbackCap: 1, BaseBackoff: time.Millisecond, BackoffFactor: 2},
		time.Second,
	)

	result, err := orch.Execute(ctx, "do something nobody has a tool for")
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, string(recovery.ClassImpossible), result.Error.Kind, "a discovery miss must be classified impossible and go through recovery, not bypass it")
}

func TestExecuteInvalidatesCachedPathwayAfterToolHashMismatch(t *testing.T) {
	ctx := context.Background()
	orch, reg, _, source := buildStackWithSource(t, map[string]string{"add": `{"a":1,"b":2}`}, func(context.Context, map[string]any) (any, error) {
		return 3, nil
	}, 1)

	first, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	require.True(t, first.Success)

	// Redeploy calculator.add under a new content hash: the pathway cached
	// above now points at a stale hash and must be invalidated rather than
	// merely skipped, so it stops being found (and rejected) on every future
	// matching goal.
	source.UpdateSource("calculator.add", "v2")
	_, err = reg.Refresh(ctx)
	require.NoError(t, err)

	second, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	assert.False(t, second.UsedCache, "a hash-mismatched pathway must not be replayed from cache")

	third, err := orch.Execute(ctx, "please add two numbers")
	require.NoError(t, err)
	assert.True(t, third.UsedCache, "the fresh pathway stored by the second run is replayed; the invalidated stale one is never picked again")
}
