// Package pathwaycache implements the cached execution-plan lookup (C4):
// Find/Store/invalidate over goal embeddings, with an in-process map as the
// source of truth and an optional Redis-backed mirror for multi-instance
// deployments (spec §4.3, §6).
package pathwaycache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/vectorindex"
)

// Mirror is the optional distributed tier a Cache can write through to.
// The Cache discards mirror errors; they never fail Store, Find or
// invalidation.
type Mirror interface {
	Put(ctx context.Context, pathway model.Pathway) error
	Invalidate(ctx context.Context, id string) error
}

// Cache is the in-process pathway cache (source of truth within one
// process, per spec §5's ordering guarantees).
type Cache struct {
	mu        sync.RWMutex
	pathways  map[string]model.Pathway // keyed by Pathway.ID
	byTool    map[model.ToolName]map[string]struct{}
	mirror    Mirror
	threshold float64
}

// New builds a Cache whose Find only returns matches at or above threshold.
// mirror may be nil.
func New(threshold float64, mirror Mirror) *Cache {
	return &Cache{
		pathways:  make(map[string]model.Pathway),
		byTool:    make(map[model.ToolName]map[string]struct{}),
		mirror:    mirror,
		threshold: threshold,
	}
}

// Find returns the highest-similarity valid pathway for goalEmbedding at or
// above the cache's threshold, or ok=false if none qualifies (spec §4.1
// step 1, §4.3).
func (c *Cache) Find(_ context.Context, goalEmbedding []float32) (model.Pathway, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best model.Pathway
	bestScore := -1.0
	for _, p := range c.pathways {
		if !p.Valid {
			continue
		}
		score := vectorindex.Cosine(goalEmbedding, p.GoalEmbedding)
		if score >= c.threshold && score > bestScore {
			best, bestScore = p, score
		}
	}
	return best, bestScore >= c.threshold
}

// Store records an execution as a new pathway with a fresh ID. Every call
// inserts; an existing pathway for the same tools or a similar goal is not
// merged or updated.
func (c *Cache) Store(ctx context.Context, goalText string, goalEmbedding []float32, trace []model.TraceStep, toolsUsed []model.ToolName, toolHashes map[model.ToolName]string, success bool) model.Pathway {
	c.mu.Lock()
	pathway := model.Pathway{
		ID:              uuid.NewString(),
		GoalText:        goalText,
		GoalEmbedding:   goalEmbedding,
		Trace:           trace,
		ToolsUsed:       toolsUsed,
		ToolHashAtStore: toolHashes,
		Valid:           true,
		CreatedAt:       time.Now(),
		LastUsedAt:      time.Now(),
	}
	if success {
		pathway.SuccessCount = 1
	} else {
		pathway.FailureCount = 1
	}
	c.pathways[pathway.ID] = pathway
	for _, t := range toolsUsed {
		if c.byTool[t] == nil {
			c.byTool[t] = make(map[string]struct{})
		}
		c.byTool[t][pathway.ID] = struct{}{}
	}
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Put(ctx, pathway)
	}
	return pathway
}

// RecordOutcome increments a pathway's success or failure counter after a
// cache-hit execution resolves (spec §4.3's "success/failure counters").
func (c *Cache) RecordOutcome(id string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pathways[id]
	if !ok {
		return
	}
	if success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	p.LastUsedAt = time.Now()
	c.pathways[id] = p
}

// InvalidateByTool marks every pathway that uses tool as invalid, e.g. when
// the tool is archived or deleted (spec §4.3, §4.5).
func (c *Cache) InvalidateByTool(ctx context.Context, tool model.ToolName) {
	c.mu.Lock()
	ids := c.byTool[tool]
	var invalidated []string
	for id := range ids {
		p := c.pathways[id]
		if p.Valid {
			p.Valid = false
			c.pathways[id] = p
			invalidated = append(invalidated, id)
		}
	}
	c.mu.Unlock()

	if c.mirror != nil {
		for _, id := range invalidated {
			_ = c.mirror.Invalidate(ctx, id)
		}
	}
}

// InvalidateByHash invalidates every pathway recorded against tool at a
// content hash other than newHash, i.e. any pathway stale with respect to a
// newly deployed tool version (spec §4.3's dependency-aware invalidation).
func (c *Cache) InvalidateByHash(ctx context.Context, tool model.ToolName, newHash string) {
	c.mu.Lock()
	var invalidated []string
	for id := range c.byTool[tool] {
		p := c.pathways[id]
		if p.Valid && p.ToolHashAtStore[tool] != newHash {
			p.Valid = false
			c.pathways[id] = p
			invalidated = append(invalidated, id)
		}
	}
	c.mu.Unlock()

	if c.mirror != nil {
		for _, id := range invalidated {
			_ = c.mirror.Invalidate(ctx, id)
		}
	}
}

// EvictInvalid drops invalid pathways older than olderThan from the
// in-process map, the soft-LRU eviction spec §4.3 expects so invalidated
// entries do not accumulate unbounded.
func (c *Cache) EvictInvalid(olderThan time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	evicted := 0
	for id, p := range c.pathways {
		if !p.Valid && p.LastUsedAt.Before(cutoff) {
			delete(c.pathways, id)
			for _, t := range p.ToolsUsed {
				delete(c.byTool[t], id)
			}
			evicted++
		}
	}
	return evicted
}

// Len returns the number of pathways currently held, valid or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pathways)
}
