package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/registry"
	"github.com/gradrix/dendrite/internal/toolplugin"
)

func TestRefreshPopulatesCatalogue(t *testing.T) {
	source := toolplugin.NewFactorySource([]toolplugin.FactoryEntry{
		{Source: "v1", Definition: toolplugin.Definition{Name: "calculator.add"}},
	})
	reg := registry.New(source)

	defs, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 1)
	assert.Equal(t, 1, reg.Count())

	_, ok := reg.Get("calculator.add")
	assert.True(t, ok)
}

func TestHasHashDetectsStaleVersion(t *testing.T) {
	source := toolplugin.NewFactorySource([]toolplugin.FactoryEntry{
		{Source: "v1", Definition: toolplugin.Definition{Name: "calculator.add"}},
	})
	reg := registry.New(source)
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	entry, ok := reg.Get("calculator.add")
	require.True(t, ok)
	assert.True(t, reg.HasHash("calculator.add", entry.Definition.ContentHash))
	assert.False(t, reg.HasHash("calculator.add", "some-other-hash"))
}

func TestRefreshReplacesCatalogueOnToolRemoval(t *testing.T) {
	source := toolplugin.NewFactorySource([]toolplugin.FactoryEntry{
		{Source: "v1", Definition: toolplugin.Definition{Name: "calculator.add"}},
		{Source: "v1", Definition: toolplugin.Definition{Name: "text.reverse"}},
	})
	reg := registry.New(source)
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Count())

	source.Remove("text.reverse")
	_, err = reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get("text.reverse")
	assert.False(t, ok)
}
