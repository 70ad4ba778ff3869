package toolplugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gradrix/dendrite/internal/model"
)

// FactoryEntry pairs a static Definition with the source text used to
// derive its content hash, for in-process tools registered by tests and the
// `demo` CLI subcommand.
type FactoryEntry struct {
	Definition Definition
	Source     string
}

// FactorySource is a Source backed by a fixed, in-process list of tools.
// Content hashes are derived from Source so lifecycle reconciliation (C8)
// still detects "edits" made between test runs.
type FactorySource struct {
	entries []FactoryEntry
}

// NewFactorySource builds a FactorySource from entries, computing each
// definition's ContentHash from its Source field.
func NewFactorySource(entries []FactoryEntry) *FactorySource {
	for i, e := range entries {
		entries[i].Definition.ContentHash = hashSource(e.Source)
	}
	return &FactorySource{entries: entries}
}

// Discover returns the configured definitions unchanged.
func (f *FactorySource) Discover(_ context.Context) ([]Definition, error) {
	defs := make([]Definition, len(f.entries))
	for i, e := range f.entries {
		defs[i] = e.Definition
	}
	return defs, nil
}

// Remove drops tool from the factory's catalogue, simulating deletion from
// the tool directory for lifecycle manager tests (spec S3).
func (f *FactorySource) Remove(tool model.ToolName) {
	filtered := f.entries[:0]
	for _, e := range f.entries {
		if e.Definition.Name != tool {
			filtered = append(filtered, e)
		}
	}
	f.entries = filtered
}

// UpdateSource replaces tool's source (and recomputed hash) in place,
// simulating an on-disk edit for improvement-engine deploy tests.
func (f *FactorySource) UpdateSource(tool model.ToolName, newSource string) {
	for i, e := range f.entries {
		if e.Definition.Name == tool {
			f.entries[i].Source = newSource
			f.entries[i].Definition.ContentHash = hashSource(newSource)
		}
	}
}

func hashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}
