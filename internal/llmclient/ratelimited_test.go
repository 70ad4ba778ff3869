package llmclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/llmclient"
)

func TestRateLimitedDelegatesToWrappedBackend(t *testing.T) {
	stub := llmclient.NewStub(16, map[string]string{"hello": "world"})
	limited := llmclient.NewRateLimited(stub, 1000, 10)

	out, err := limited.Complete(context.Background(), llmclient.Prompt{User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "world", out)
	assert.Equal(t, stub.Dimension(), limited.Dimension())
}

func TestRateLimitedBlocksBeyondBurst(t *testing.T) {
	stub := llmclient.NewStub(16, nil)
	limited := llmclient.NewRateLimited(stub, 1, 1)

	ctx := context.Background()
	_, err := limited.Embed(ctx, "first")
	require.NoError(t, err)

	deadline, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = limited.Embed(deadline, "second")
	assert.Error(t, err, "a second call within the same burst window should wait past the short deadline")
}
