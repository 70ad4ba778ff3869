package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradrix/dendrite/internal/engine"
)

func TestNewTemporalClientOptionsInstallsTracingInterceptor(t *testing.T) {
	opts, err := engine.NewTemporalClientOptions("localhost:7233", "dendrite")
	require.NoError(t, err)
	assert.Equal(t, "localhost:7233", opts.HostPort)
	assert.Equal(t, "dendrite", opts.Namespace)
	assert.Len(t, opts.Interceptors, 1)
}
