package loop

import (
	"context"
	"sort"
	"time"

	"github.com/gradrix/dendrite/internal/model"
)

// recomputeToolStatistics rebuilds the ToolStatistics aggregate row for
// every tool with at least one invocation, reading the invocation log and
// writing the result with PutToolStatistics (spec §4.9). This is the only
// writer of ToolStatistics; C3's ranking and C11's opportunity detection
// only ever read the row it produces.
func (l *Loop) recomputeToolStatistics(ctx context.Context) (int, error) {
	names, err := l.store.ListToolNames(ctx)
	if err != nil {
		return 0, err
	}

	recomputed := 0
	for _, tool := range names {
		invocations, err := l.store.RecentInvocationsByTool(ctx, tool, 0)
		if err != nil || len(invocations) == 0 {
			continue
		}

		stats := model.ToolStatistics{Tool: tool, FirstUsedAt: invocations[0].StartedAt}
		durations := make([]time.Duration, 0, len(invocations))
		var totalDuration time.Duration
		for _, inv := range invocations {
			stats.Total++
			if inv.Success {
				stats.SuccessCount++
			}
			if inv.StartedAt.After(stats.LastUsedAt) {
				stats.LastUsedAt = inv.StartedAt
			}
			if inv.StartedAt.Before(stats.FirstUsedAt) {
				stats.FirstUsedAt = inv.StartedAt
			}
			totalDuration += inv.Duration
			durations = append(durations, inv.Duration)
		}
		if stats.Total > 0 {
			stats.MeanDuration = totalDuration / time.Duration(stats.Total)
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		stats.P50Duration = percentileDuration(durations, 0.50)
		stats.P95Duration = percentileDuration(durations, 0.95)
		stats.P99Duration = percentileDuration(durations, 0.99)

		if err := l.store.PutToolStatistics(ctx, stats); err != nil {
			return recomputed, err
		}
		recomputed++
	}
	return recomputed, nil
}

// percentileDuration returns the element at index floor(p*(len-1)) of an
// already-sorted duration slice, for p in 0..1 (0 for an empty slice).
func percentileDuration(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
