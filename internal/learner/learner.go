// Package learner implements the decomposition learner (C5): suggesting a
// subgoal breakdown for a goal from prior successful decompositions, and
// recording new ones (spec §4.4).
package learner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/vectorindex"
)

// Suggestion is a candidate decomposition with its confidence score.
type Suggestion struct {
	Subgoals   []string
	Confidence float64
}

// Learner suggests and records goal decompositions.
type Learner struct {
	store     relstore.Store
	llm       llmclient.Backend
	threshold float64
}

// New builds a Learner. threshold is the minimum goal-embedding similarity
// for a stored pattern to be considered a match for a new goal.
func New(store relstore.Store, llm llmclient.Backend, threshold float64) *Learner {
	return &Learner{store: store, llm: llm, threshold: threshold}
}

// Suggest returns the best-matching stored decomposition for goalText, or
// ok=false if no pattern meets the similarity threshold (spec §4.4 step 1).
// Among patterns above threshold, the highest EfficiencyScore wins, then the
// most recent LastUsedAt; similarity only decides which patterns qualify.
func (l *Learner) Suggest(ctx context.Context, goalText string) (Suggestion, bool, error) {
	vec, err := l.llm.Embed(ctx, goalText)
	if err != nil {
		return Suggestion{}, false, fmt.Errorf("learner: embed goal: %w", err)
	}
	patterns, err := l.store.ListDecompositionPatterns(ctx)
	if err != nil {
		return Suggestion{}, false, fmt.Errorf("learner: list patterns: %w", err)
	}

	type scored struct {
		pattern    model.DecompositionPattern
		similarity float64
	}
	var candidates []scored
	for _, p := range patterns {
		sim := vectorindex.Cosine(vec, p.GoalEmbedding)
		if sim >= l.threshold {
			candidates = append(candidates, scored{p, sim})
		}
	}
	if len(candidates) == 0 {
		return Suggestion{}, false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.pattern.EfficiencyScore != b.pattern.EfficiencyScore {
			return a.pattern.EfficiencyScore > b.pattern.EfficiencyScore
		}
		return a.pattern.LastUsedAt.After(b.pattern.LastUsedAt)
	})
	best := candidates[0].pattern
	return Suggestion{
		Subgoals:   best.SubgoalList,
		Confidence: confidence(best),
	}, true, nil
}

// Store records a goal decomposition outcome, upserting into the pattern
// collapsed by normalised goal text (spec §4.4 step 4, relstore §3).
func (l *Learner) Store(ctx context.Context, goalText, goalType string, subgoals []string, success bool, duration time.Duration, toolsUsed []model.ToolName) error {
	vec, err := l.llm.Embed(ctx, goalText)
	if err != nil {
		return fmt.Errorf("learner: embed goal: %w", err)
	}
	now := time.Now()
	pattern := model.DecompositionPattern{
		GoalText:        goalText,
		GoalEmbedding:   vec,
		GoalType:        goalType,
		SubgoalList:     subgoals,
		Success:         success,
		ExecutionTime:   duration,
		ToolsUsed:       toolsUsed,
		EfficiencyScore: efficiencyScore(duration, len(toolsUsed)),
		CreatedAt:       now,
		LastUsedAt:      now,
	}
	return l.store.UpsertDecompositionPattern(ctx, pattern)
}

// confidence implements spec §4.4's formula:
// success_rate x min(1, log(usage+1)/log(10)).
func confidence(p model.DecompositionPattern) float64 {
	successRate := 0.0
	if p.Success {
		successRate = 1.0
	}
	usageFactor := math.Log(float64(p.UsageCount)+1) / math.Log(10)
	if usageFactor > 1 {
		usageFactor = 1
	}
	return successRate * usageFactor
}

// efficiencyScore rewards decompositions that finish fast with few tools;
// Suggest ranks above-threshold patterns by it first.
func efficiencyScore(duration time.Duration, toolCount int) float64 {
	if duration <= 0 {
		duration = time.Millisecond
	}
	return 1.0 / (duration.Seconds() * float64(toolCount+1))
}
