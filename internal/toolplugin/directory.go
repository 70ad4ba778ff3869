package toolplugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gradrix/dendrite/internal/model"
)

// DirectorySource discovers tool source files in a configured directory.
// Each file is exposed as a Definition whose ContentHash is the SHA-256 of
// its bytes; execution is delegated to a sandbox.Runtime by the caller, the
// loader itself only does discovery and hashing (spec §6, design notes §9:
// "the fact that the reference implementation imports source files is
// incidental").
type DirectorySource struct {
	dir string
}

// NewDirectorySource builds a DirectorySource rooted at dir.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir}
}

// Discover scans dir (non-recursively, skipping the backups/ subdirectory
// used by the lifecycle manager and improvement engine for backup copies)
// and returns one Definition per file.
func (d *DirectorySource) Discover(_ context.Context) ([]Definition, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("toolplugin: read tool directory: %w", err)
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("toolplugin: read %s: %w", path, err)
		}
		sum := sha256.Sum256(data)
		defs = append(defs, Definition{
			Name:        model.ToolName(toolNameFromFile(entry.Name())),
			ContentHash: hex.EncodeToString(sum[:]),
		})
	}
	return defs, nil
}

func toolNameFromFile(filename string) string {
	ext := filepath.Ext(filename)
	return filename[:len(filename)-len(ext)]
}
