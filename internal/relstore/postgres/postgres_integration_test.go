//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gradrix/dendrite/internal/model"
	"github.com/gradrix/dendrite/internal/relstore/postgres"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "dendrite",
			"POSTGRES_PASSWORD": "dendrite",
			"POSTGRES_DB":       "dendrite",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req, Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return "host=" + host + " port=" + port.Port() + " user=dendrite password=dendrite dbname=dendrite sslmode=disable"
}

func TestPostgresStoreRoundTripsGoalExecution(t *testing.T) {
	dsn := startPostgres(t)
	store, err := postgres.Open(postgres.Options{DSN: dsn})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SaveGoalExecution(ctx, model.GoalExecution{
		ID: "e1", Text: "book a flight", Success: true, CreatedAt: time.Now(),
	}))

	count, err := store.CountGoalExecutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgresStoreWithToolLockSerializesWriters(t *testing.T) {
	dsn := startPostgres(t)
	store, err := postgres.Open(postgres.Options{DSN: dsn})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.AppendToolVersion(ctx, model.ToolVersion{Tool: "t", Version: 1, CreatedAt: time.Now()}))

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- store.WithToolLock(ctx, "t", func(ctx context.Context) error {
				time.Sleep(20 * time.Millisecond)
				return nil
			})
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}
