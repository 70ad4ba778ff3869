//go:build integration

package mongo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gradrix/dendrite/internal/docstore"
	mongostore "github.com/gradrix/dendrite/internal/docstore/mongo"
)

func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req, Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	return "mongodb://" + host + ":" + port.Port()
}

func TestMongoStoreRoundTripsDocument(t *testing.T) {
	ctx := context.Background()
	uri := startMongo(t)
	store, err := mongostore.Open(ctx, mongostore.Options{URI: uri, Database: "dendrite", Collection: "lifecycle"})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, docstore.Document{Namespace: "lifecycle", Key: "calculator.add", Value: []byte(`{"state":"active"}`)}))

	doc, err := store.Get(ctx, "lifecycle", "calculator.add")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"state":"active"}`), doc.Value)
}

func TestMongoStoreGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	uri := startMongo(t)
	store, err := mongostore.Open(ctx, mongostore.Options{URI: uri, Database: "dendrite", Collection: "lifecycle"})
	require.NoError(t, err)

	_, err = store.Get(ctx, "lifecycle", "does-not-exist")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMongoStoreListScopesToNamespace(t *testing.T) {
	ctx := context.Background()
	uri := startMongo(t)
	store, err := mongostore.Open(ctx, mongostore.Options{URI: uri, Database: "dendrite", Collection: "lifecycle"})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, docstore.Document{Namespace: "ns-a", Key: "k1", Value: []byte("v1")}))
	require.NoError(t, store.Put(ctx, docstore.Document{Namespace: "ns-b", Key: "k2", Value: []byte("v2")}))

	docs, err := store.List(ctx, "ns-a")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "k1", docs[0].Key)
}
