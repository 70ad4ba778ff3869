package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/pathwaycache"
	"github.com/gradrix/dendrite/internal/relstore/memstore"
	"github.com/gradrix/dendrite/internal/telemetry"
)

type fakeRestorer struct {
	restoredTool    model.ToolName
	restoredVersion int
	calls           int
}

func (f *fakeRestorer) RestoreVersion(_ context.Context, tool model.ToolName, version int) error {
	f.restoredTool, f.restoredVersion, f.calls = tool, version, f.calls+1
	return nil
}

func TestCheckStandardRollsBackOnRegression(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{
		Tool: "calculator.add", Total: 10, SuccessCount: 3, LastUsedAt: time.Now(),
	}))

	restorer := &fakeRestorer{}
	cache := pathwaycache.New(0.9, nil)
	m := New(store, cache, restorer, telemetry.NewNoop(), Policy{RegressionThreshold: 0.1, MinExecutions: 1})

	session := model.DeploymentSession{
		ID: "s1", Tool: "calculator.add", DeployedVersion: 2, PreviousVersion: 1,
		BaselineSuccess: 1.0, Status: "monitoring",
	}
	rolledBack, err := m.check(ctx, session, "standard")
	require.NoError(t, err)
	assert.True(t, rolledBack)
	assert.Equal(t, 1, restorer.calls)
	assert.Equal(t, 1, restorer.restoredVersion)

	updated, err := store.GetDeploymentSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "rolled_back", updated.Status)
}

func TestCheckStandardDoesNothingBelowMinExecutions(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{
		Tool: "calculator.add", Total: 1, SuccessCount: 0, LastUsedAt: time.Now(),
	}))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{RegressionThreshold: 0.1, MinExecutions: 10})

	session := model.DeploymentSession{ID: "s2", Tool: "calculator.add", BaselineSuccess: 1.0}
	rolledBack, err := m.check(ctx, session, "standard")
	require.NoError(t, err)
	assert.False(t, rolledBack)
	assert.Zero(t, restorer.calls)
}

func TestCheckStandardToleratesRegressionWithinThreshold(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.PutToolStatistics(ctx, model.ToolStatistics{
		Tool: "calculator.add", Total: 10, SuccessCount: 9, LastUsedAt: time.Now(),
	}))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{RegressionThreshold: 0.5, MinExecutions: 1})
	session := model.DeploymentSession{ID: "s3", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "standard")
	require.NoError(t, err)
	assert.False(t, rolledBack)
	assert.Zero(t, restorer.calls)
}

func TestCheckImmediateRollsBackOnThreeConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()
	require.NoError(t, store.SaveToolInvocations(ctx, []model.ToolInvocation{
		{ID: "i1", Tool: "calculator.add", Success: false, StartedAt: now.Add(-3 * time.Second)},
		{ID: "i2", Tool: "calculator.add", Success: false, StartedAt: now.Add(-2 * time.Second)},
		{ID: "i3", Tool: "calculator.add", Success: false, StartedAt: now.Add(-1 * time.Second)},
	}))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{})
	session := model.DeploymentSession{ID: "s4", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "immediate")
	require.NoError(t, err)
	assert.True(t, rolledBack)
	assert.Equal(t, 1, restorer.calls)
}

func TestCheckImmediateRollsBackOnSignatureMismatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.SaveToolInvocations(ctx, []model.ToolInvocation{
		{ID: "i1", Tool: "calculator.add", Success: false, StartedAt: time.Now(),
			Error: &model.ErrorSummary{Kind: "signature_mismatch", Message: "schema register failed"}},
	}))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{})
	session := model.DeploymentSession{ID: "s5", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "immediate")
	require.NoError(t, err)
	assert.True(t, rolledBack, "a single signature-mismatch exception must roll back immediately, without waiting for a consecutive-failure run")
}

func TestCheckImmediateDoesNothingWhenCallsSucceed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()
	require.NoError(t, store.SaveToolInvocations(ctx, []model.ToolInvocation{
		{ID: "i1", Tool: "calculator.add", Success: true, StartedAt: now.Add(-2 * time.Second)},
		{ID: "i2", Tool: "calculator.add", Success: false, StartedAt: now.Add(-1 * time.Second)},
	}))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{})
	session := model.DeploymentSession{ID: "s6", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "immediate")
	require.NoError(t, err)
	assert.False(t, rolledBack)
	assert.Zero(t, restorer.calls)
}

func TestCheckFastRollsBackOnAbsoluteThirtyPercentRegression(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	invocations := make([]model.ToolInvocation, 10)
	now := time.Now()
	for i := range invocations {
		invocations[i] = model.ToolInvocation{
			ID: fmt.Sprintf("i%d", i), Tool: "calculator.add",
			Success:   i < 6, // 60% success, 40 points below a 1.0 baseline
			StartedAt: now.Add(-time.Duration(10-i) * time.Second),
		}
	}
	require.NoError(t, store.SaveToolInvocations(ctx, invocations))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{})
	session := model.DeploymentSession{ID: "s7", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "fast")
	require.NoError(t, err)
	assert.True(t, rolledBack)
	assert.Equal(t, 1, restorer.calls)
}

func TestCheckFastDoesNothingBelowTenSamples(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	invocations := make([]model.ToolInvocation, 5)
	now := time.Now()
	for i := range invocations {
		invocations[i] = model.ToolInvocation{
			ID: fmt.Sprintf("i%d", i), Tool: "calculator.add",
			Success: false, StartedAt: now.Add(-time.Duration(5-i) * time.Second),
		}
	}
	require.NoError(t, store.SaveToolInvocations(ctx, invocations))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{})
	session := model.DeploymentSession{ID: "s8", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "fast")
	require.NoError(t, err)
	assert.False(t, rolledBack, "fewer than fastTierMinSamples calls must not be enough to trigger a fast rollback")
	assert.Zero(t, restorer.calls)
}

func TestCheckFastToleratesRegressionWithinAbsoluteThreshold(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	invocations := make([]model.ToolInvocation, 10)
	now := time.Now()
	for i := range invocations {
		invocations[i] = model.ToolInvocation{
			ID: fmt.Sprintf("i%d", i), Tool: "calculator.add",
			Success:   i < 8, // 80% success, 20 points below a 1.0 baseline
			StartedAt: now.Add(-time.Duration(10-i) * time.Second),
		}
	}
	require.NoError(t, store.SaveToolInvocations(ctx, invocations))

	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{})
	session := model.DeploymentSession{ID: "s9", Tool: "calculator.add", BaselineSuccess: 1.0}

	rolledBack, err := m.check(ctx, session, "fast")
	require.NoError(t, err)
	assert.False(t, rolledBack)
	assert.Zero(t, restorer.calls)
}

func TestStartMonitoringCreatesSessionAndStopAllCancelsIt(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	restorer := &fakeRestorer{}
	m := New(store, pathwaycache.New(0.9, nil), restorer, telemetry.NewNoop(), Policy{
		MonitoringWindow: time.Hour, BaselineWindow: time.Hour, FastRollbackWindow: time.Minute, RegressionThreshold: 0.2, MinExecutions: 100,
	})

	require.NoError(t, m.StartMonitoring(ctx, "calculator.add", 2, 1))
	m.mu.Lock()
	active := len(m.cancels)
	m.mu.Unlock()
	assert.Equal(t, 1, active)

	m.StopAll()
}
