package learner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/learner"
	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/relstore/memstore"
)

func TestSuggestReturnsFalseWhenNoPatternsStored(t *testing.T) {
	l := learner.New(memstore.New(), llmclient.NewStub(32, nil), 0.8)
	_, ok, err := l.Suggest(context.Background(), "book a flight to Rome")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreThenSuggestRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := learner.New(memstore.New(), llmclient.NewStub(32, nil), 0.5)

	goal := "book a flight and a hotel"
	require.NoError(t, l.Store(ctx, goal, "travel", []string{"book flight", "book hotel"}, true, 2*time.Second, []model.ToolName{"flights.book", "hotels.book"}))

	suggestion, ok, err := l.Suggest(ctx, goal)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"book flight", "book hotel"}, suggestion.Subgoals)
	assert.Greater(t, suggestion.Confidence, 0.0)
}

func TestUpsertCollapsesRepeatedGoalText(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l := learner.New(store, llmclient.NewStub(32, nil), 0.5)
	goal := "summarize this document"

	require.NoError(t, l.Store(ctx, goal, "doc", []string{"summarize"}, true, time.Second, []model.ToolName{"docs.summarize"}))
	require.NoError(t, l.Store(ctx, goal, "doc", []string{"summarize"}, true, time.Second, []model.ToolName{"docs.summarize"}))

	patterns, err := store.ListDecompositionPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1, "identical normalised goal text must collapse into one row")
	assert.Equal(t, 2, patterns[0].UsageCount)
}
