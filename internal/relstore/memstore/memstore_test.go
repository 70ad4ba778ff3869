package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/relstore/memstore"
)

func TestSaveGoalExecutionThenCount(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	require.NoError(t, store.SaveGoalExecution(ctx, model.GoalExecution{ID: "e1", Text: "goal", CreatedAt: time.Now()}))
	count, err := store.CountGoalExecutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetToolStatisticsNotFound(t *testing.T) {
	store := memstore.New()
	_, err := store.GetToolStatistics(context.Background(), "missing.tool")
	assert.ErrorIs(t, err, relstore.ErrNotFound)
}

func TestLatestToolVersionReturnsHighestVersion(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.AppendToolVersion(ctx, model.ToolVersion{Tool: "t", Version: 1}))
	require.NoError(t, store.AppendToolVersion(ctx, model.ToolVersion{Tool: "t", Version: 3}))
	require.NoError(t, store.AppendToolVersion(ctx, model.ToolVersion{Tool: "t", Version: 2}))

	latest, err := store.LatestToolVersion(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
}

func TestUpsertDecompositionPatternCollapsesByNormalisedGoalText(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.UpsertDecompositionPattern(ctx, model.DecompositionPattern{GoalText: "  Book A Flight  "}))
	require.NoError(t, store.UpsertDecompositionPattern(ctx, model.DecompositionPattern{GoalText: "book a flight"}))

	patterns, err := store.ListDecompositionPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].UsageCount)
}

func TestWithToolLockSerializesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithToolLock(ctx, "shared.tool", func(ctx context.Context) error {
				current := counter
				time.Sleep(time.Microsecond)
				counter = current + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter, "WithToolLock must serialize writers to the same tool")
}
