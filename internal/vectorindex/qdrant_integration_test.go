//go:build integration

package vectorindex_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gradrix/dendrite/internal/vectorindex"
)

func startQdrant(t *testing.T) (host string, port int) {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.12.4",
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req, Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	h, err := container.Host(ctx)
	require.NoError(t, err)
	p, err := container.MappedPort(ctx, "6334")
	require.NoError(t, err)
	mapped, err := strconv.Atoi(p.Port())
	require.NoError(t, err)
	return h, mapped
}

func TestQdrantUpsertThenQueryReturnsClosestMatch(t *testing.T) {
	ctx := context.Background()
	host, port := startQdrant(t)

	idx, err := vectorindex.NewQdrant(ctx, host, port, "dendrite-tools", 3, "")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, "calculator.add", []float32{1, 0, 0}, map[string]any{"kind": "tool"}))
	require.NoError(t, idx.Upsert(ctx, "calculator.subtract", []float32{0, 1, 0}, map[string]any{"kind": "tool"}))

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "calculator.add", matches[0].ID)
}

func TestQdrantDeleteRemovesPointFromResults(t *testing.T) {
	ctx := context.Background()
	host, port := startQdrant(t)

	idx, err := vectorindex.NewQdrant(ctx, host, port, "dendrite-tools-delete", 3, "")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, "text.reverse", []float32{0, 0, 1}, nil))
	require.NoError(t, idx.Delete(ctx, "text.reverse"))

	matches, err := idx.Query(ctx, []float32{0, 0, 1}, 5, nil)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "text.reverse", m.ID)
	}
}
