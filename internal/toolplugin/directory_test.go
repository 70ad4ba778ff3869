package toolplugin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

func TestDiscoverReturnsOneDefinitionPerFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "calculator.add.go"), []byte("package tool"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "text.reverse.go"), []byte("package tool"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "backups"), 0o755))

	source := toolplugin.NewDirectorySource(dir)
	defs, err := source.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

func TestDiscoverOnMissingDirectoryReturnsEmpty(t *testing.T) {
	source := toolplugin.NewDirectorySource(filepath.Join(t.TempDir(), "does-not-exist"))
	defs, err := source.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDiscoverHashChangesWithFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calculator.add.go")
	require.NoError(t, os.WriteFile(path, []byte("package tool\n// v1"), 0o644))

	source := toolplugin.NewDirectorySource(dir)
	first, err := source.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, model.ToolName("calculator.add"), first[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("package tool\n// v2"), 0o644))
	second, err := source.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ContentHash, second[0].ContentHash)
}
