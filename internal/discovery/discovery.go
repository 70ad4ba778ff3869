// Package discovery implements tool discovery (C3): vector-similarity
// candidate search over tool descriptions followed by statistical
// re-ranking, so the orchestrator's tool-selection step (spec §4.1 step 4)
// never has to linearly scan the registry itself.
package discovery

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gradrix/dendrite/internal/llmclient"
	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/relstore"
	"github.com/gradrix/dendrite/internal/vectorindex"
)

// Candidate is one ranked tool returned by Find.
type Candidate struct {
	Tool  model.ToolName
	Score float64
}

// Discovery resolves a goal or subgoal description to a ranked list of tool
// candidates.
type Discovery struct {
	index    vectorindex.Index
	store    relstore.Store
	registry *registry.Registry
	llm      llmclient.Backend
}

// New builds a Discovery over its collaborators.
func New(index vectorindex.Index, store relstore.Store, reg *registry.Registry, llm llmclient.Backend) *Discovery {
	return &Discovery{index: index, store: store, registry: reg, llm: llm}
}

// IndexTool upserts a tool's description embedding into the vector index.
// Called by the CLI bootstrap for each catalogued tool; Registry.Refresh does
// not call it.
func (d *Discovery) IndexTool(ctx context.Context, name model.ToolName, description string) error {
	vec, err := d.llm.Embed(ctx, description)
	if err != nil {
		return fmt.Errorf("discovery: embed tool description: %w", err)
	}
	return d.index.Upsert(ctx, string(name), vec, map[string]any{"tool": string(name)})
}

// Find returns up to k tool candidates for description, ranked by
// success_rate x log(usage) x recency (spec §4.1 step 4). Candidates whose
// tool is no longer catalogued in the registry are dropped.
func (d *Discovery) Find(ctx context.Context, description string, k int) ([]Candidate, error) {
	vec, err := d.llm.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("discovery: embed query: %w", err)
	}
	// Over-fetch from the vector index since the registry filter and
	// statistical re-rank can both drop candidates below k.
	matches, err := d.index.Query(ctx, vec, k*4+8, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: query index: %w", err)
	}

	now := time.Now()
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		name := model.ToolName(m.ID)
		if _, ok := d.registry.Get(name); !ok {
			continue
		}
		stats, err := d.store.GetToolStatistics(ctx, name)
		if err != nil {
			// Never-invoked tools still get a shot, ranked purely on similarity.
			stats = model.ToolStatistics{Tool: name}
		}
		out = append(out, Candidate{Tool: name, Score: m.Score * statisticalWeight(stats, now)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// statisticalWeight returns success_rate x log(usage+e) x recency, where
// recency decays toward 0.5 over a week of disuse and never-used tools get
// a neutral weight of 1 so similarity alone decides their rank.
func statisticalWeight(stats model.ToolStatistics, now time.Time) float64 {
	if stats.Total == 0 {
		return 1.0
	}
	successRate := stats.SuccessRate()
	usageFactor := math.Log(float64(stats.Total) + math.E)
	daysSinceUse := now.Sub(stats.LastUsedAt).Hours() / 24
	recency := 0.5 + 0.5/(1+daysSinceUse/7)
	return successRate * usageFactor * recency
}
