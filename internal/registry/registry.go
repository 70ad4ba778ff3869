// Package registry implements the in-memory tool catalogue (C2): discovery
// from a toolplugin.Source, refresh, and version-hash tracking. Read paths
// (tool selection, cache validation) take a shared lock; refresh takes the
// exclusive lock (spec §5).
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

// Entry is one catalogued tool.
type Entry struct {
	Definition toolplugin.Definition
}

// Registry is the in-memory tool catalogue.
type Registry struct {
	mu      sync.RWMutex
	source  toolplugin.Source
	entries map[model.ToolName]Entry
}

// New builds a Registry backed by source. Call Refresh to populate it.
func New(source toolplugin.Source) *Registry {
	return &Registry{source: source, entries: make(map[model.ToolName]Entry)}
}

// Refresh re-discovers tools from the source and replaces the catalogue
// atomically under the exclusive lock. Returns every definition the source
// reported; the lifecycle manager diffs Snapshot results taken before and
// after the refresh rather than this return value.
func (r *Registry) Refresh(ctx context.Context) ([]toolplugin.Definition, error) {
	defs, err := r.source.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: discover: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[model.ToolName]Entry, len(defs))
	for _, d := range defs {
		r.entries[d.Name] = Entry{Definition: d}
	}
	return defs, nil
}

// Get returns the catalogued entry for name, observing a consistent
// snapshot under the shared lock.
func (r *Registry) Get(name model.ToolName) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// HasHash reports whether name is present in the registry with exactly
// contentHash, the check the orchestrator performs to validate a cached
// pathway (spec §4.1 step 1).
func (r *Registry) HasHash(name model.ToolName, contentHash string) bool {
	e, ok := r.Get(name)
	return ok && e.Definition.ContentHash == contentHash
}

// List returns a snapshot of every catalogued tool name.
func (r *Registry) List() []model.ToolName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]model.ToolName, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	return names
}

// Snapshot returns a name->hash map of the current catalogue, used by the
// lifecycle manager to diff against disk state.
func (r *Registry) Snapshot() map[model.ToolName]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.ToolName]string, len(r.entries))
	for n, e := range r.entries {
		out[n] = e.Definition.ContentHash
	}
	return out
}

// Count returns the number of catalogued tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
