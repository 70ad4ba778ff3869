package sandbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/sandbox"
)

func TestRunReturnsOutputOnSuccess(t *testing.T) {
	rt := sandbox.NewInProcess(map[string]sandbox.ToolFunc{
		"echo": func(_ context.Context, params map[string]any) (any, error) {
			return params["input"], nil
		},
	})
	result, err := rt.Run(context.Background(), sandbox.Invocation{Tool: "echo", Params: map[string]any{"input": "hi"}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi", result.Output)
}

func TestRunReturnsErrorForUnregisteredTool(t *testing.T) {
	rt := sandbox.NewInProcess(nil)
	_, err := rt.Run(context.Background(), sandbox.Invocation{Tool: "missing"})
	assert.Error(t, err)
}

func TestRunSurfacesToolError(t *testing.T) {
	rt := sandbox.NewInProcess(map[string]sandbox.ToolFunc{
		"fails": func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	})
	result, err := rt.Run(context.Background(), sandbox.Invocation{Tool: "fails"})
	assert.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.ErrorMsg)
}

func TestRunRespectsContextTimeout(t *testing.T) {
	rt := sandbox.NewInProcess(map[string]sandbox.ToolFunc{
		"slow": func(ctx context.Context, _ map[string]any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	result, err := rt.Run(ctx, sandbox.Invocation{Tool: "slow"})
	assert.Error(t, err)
	assert.False(t, result.Success)
}
