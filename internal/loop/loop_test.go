package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/improvement"
	"github.com/gradrix/dendrite/internal/lifecycle"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/relstore/memstore"
	"github.com/gradrix/dendrite/internal/telemetry"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

type fakeImprover struct {
	calls []model.ToolName
}

func (f *fakeImprover) Improve(_ context.Context, def toolplugin.Definition, _ string) (improvement.Report, error) {
	f.calls = append(f.calls, def.Name)
	return improvement.Report{Deployed: true}, nil
}

type fakeToolSource struct {
	defs map[model.ToolName]toolplugin.Definition
}

func (f *fakeToolSource) Definition(_ context.Context, tool model.ToolName) (toolplugin.Definition, bool, error) {
	def, ok := f.defs[tool]
	return def, ok, nil
}

func TestDetectOpportunitiesFindsToolsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{Tool: "bad.tool", Total: 20, SuccessCount: 5}))
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{Tool: "good.tool", Total: 20, SuccessCount: 19}))
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{Tool: "unproven.tool", Total: 2, SuccessCount: 0}))
	// ListToolNames only lists tools that have recorded invocations.
	require.NoError(t, store.SaveToolInvocations(ctx, []model.ToolInvocation{
		{ID: "i1", Tool: "bad.tool"}, {ID: "i2", Tool: "good.tool"}, {ID: "i3", Tool: "unproven.tool"},
	}))

	l := &Loop{store: store, policy: Policy{ImprovementThreshold: 0.5, MinExecutionsForAnalysis: 10}}
	opportunities := l.detectOpportunities(ctx)
	require.Len(t, opportunities, 1)
	assert.Equal(t, model.ToolName("bad.tool"), opportunities[0])
}

func TestRunCheckCycleAttemptsImprovementUpToCap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{Tool: "bad.one", Total: 20, SuccessCount: 1}))
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{Tool: "bad.two", Total: 20, SuccessCount: 1}))
	require.NoError(t, store.SaveToolInvocations(ctx, []model.ToolInvocation{
		{ID: "i1", Tool: "bad.one"}, {ID: "i2", Tool: "bad.two"},
	}))

	reg := registry.New(toolplugin.NewFactorySource(nil))
	mgr := lifecycle.New(reg, store, pathwaycache.New(0.9, nil), telemetry.NewNoop(), lifecycle.Policy{AlertSuccessRateMin: 0.85, AlertUsesMin: 5})

	improver := &fakeImprover{}
	source := &fakeToolSource{defs: map[model.ToolName]toolplugin.Definition{
		"bad.one": {Name: "bad.one"},
		"bad.two": {Name: "bad.two"},
	}}

	l := New(mgr, store, pathwaycache.New(0.9, nil), improver, source, telemetry.NewNoop(), Policy{
		ImprovementThreshold: 0.5, MinExecutionsForAnalysis: 10, MaxOpportunitiesPerCycle: 1,
	})

	require.NoError(t, l.runCheckCycle(ctx))
	assert.Len(t, improver.calls, 1, "opportunity cap must limit improvement attempts per cycle")
}

func TestRunMaintenanceCycleEvictsStalePathways(t *testing.T) {
	ctx := context.Background()
	cache := pathwaycache.New(0.9, nil)
	p := cache.Store(ctx, "stale goal", []float32{1, 0, 0}, nil, []model.ToolName{"t"}, map[model.ToolName]string{"t": "h1"}, true)
	cache.InvalidateByTool(ctx, "t")

	l := &Loop{cache: cache, store: memstore.New(), telemetry: telemetry.NewNoop(), policy: Policy{MaintenanceInterval: time.Nanosecond}}
	time.Sleep(time.Millisecond)
	l.runMaintenanceCycle(ctx)

	assert.Equal(t, 0, cache.Len(), "evicted pathway %s should be removed", p.ID)
}

func TestRunMaintenanceCycleRecomputesToolStatisticsFromInvocations(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()
	require.NoError(t, store.SaveToolInvocations(ctx, []model.ToolInvocation{
		{ID: "i1", Tool: "calculator.add", Success: true, Duration: 10 * time.Millisecond, StartedAt: now.Add(-time.Hour)},
		{ID: "i2", Tool: "calculator.add", Success: false, Duration: 20 * time.Millisecond, StartedAt: now},
	}))

	l := &Loop{store: store, cache: pathwaycache.New(0.9, nil), telemetry: telemetry.NewNoop(), policy: Policy{MaintenanceInterval: time.Hour}}
	l.runMaintenanceCycle(ctx)

	stats, err := store.GetToolStatistics(ctx, "calculator.add")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.WithinDuration(t, now, stats.LastUsedAt, time.Second)
}
