package vectorindex

import (
	"context"
	"sort"
	"sync"
)

// MemIndex is a brute-force, in-memory Index. Suitable for the pathway and
// tool-description corpus sizes this engine targets (spec's stated scale is
// thousands of tools/pathways per process, not web-scale retrieval).
type MemIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	meta    map[string]map[string]any
}

// NewMemIndex builds an empty in-memory index.
func NewMemIndex() *MemIndex {
	return &MemIndex{
		vectors: make(map[string][]float32),
		meta:    make(map[string]map[string]any),
	}
}

// Upsert stores or replaces the vector and metadata for id.
func (m *MemIndex) Upsert(_ context.Context, id string, vector []float32, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.vectors[id] = cp
	m.meta[id] = metadata
	return nil
}

// Delete removes id from the index. Deleting a missing id is a no-op.
func (m *MemIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, id)
	delete(m.meta, id)
	return nil
}

// Query returns up to k matches above no implicit threshold; callers apply
// their own similarity cutoff (spec's cache/pattern thresholds are
// component-level, not index-level).
func (m *MemIndex) Query(_ context.Context, vector []float32, k int, filter map[string]any) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.vectors))
	for id, v := range m.vectors {
		meta := m.meta[id]
		if !matchesFilter(meta, filter) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: Cosine(vector, v), Metadata: meta})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func matchesFilter(meta map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}
