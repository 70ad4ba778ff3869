package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/engine"
)

func TestInMemoryRunReturnsTaskResult(t *testing.T) {
	e := engine.NewInMemory()
	result, err := e.Run(context.Background(), "goal", func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestInMemoryRunPropagatesTaskError(t *testing.T) {
	e := engine.NewInMemory()
	wantErr := errors.New("tool failed")
	_, err := e.Run(context.Background(), "goal", func(context.Context) (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestInMemoryRunRespectsContextCancellation(t *testing.T) {
	e := engine.NewInMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Run(ctx, "goal", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return "too slow", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
