package llmclient

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Backend with a shared token-bucket limiter, for the
// hosted providers (Anthropic, OpenAI, Bedrock) whose APIs enforce a
// requests-per-second quota that the stub backend has no need to respect.
type RateLimited struct {
	backend Backend
	limiter *rate.Limiter
}

// NewRateLimited wraps backend with a limiter allowing rps requests per
// second, bursting up to burst.
func NewRateLimited(backend Backend, rps float64, burst int) *RateLimited {
	return &RateLimited{backend: backend, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Complete waits for a token before delegating to the wrapped backend.
func (r *RateLimited) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.backend.Complete(ctx, prompt)
}

// Embed waits for a token before delegating to the wrapped backend.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.backend.Embed(ctx, text)
}

// Dimension delegates to the wrapped backend.
func (r *RateLimited) Dimension() int { return r.backend.Dimension() }
