// Package llmclient defines the narrow interface the engine uses to talk to
// the large-language-model backend (spec §6) and provides a deterministic
// stub plus real adapters for Anthropic, OpenAI, and Bedrock.
package llmclient

import "context"

type (
	// Prompt is the input to a single completion call. Options is a small,
	// open bag rather than a struct so callers can pass provider-specific
	// knobs (temperature, max tokens) without widening this interface.
	Prompt struct {
		System  string
		User    string
		Model   string
		Options map[string]any
	}

	// Backend abstracts text completion and embedding. All calls are
	// synchronous from the caller's perspective but yielding: callers should
	// always pass a context with a deadline.
	Backend interface {
		// Complete returns the model's text completion for the prompt.
		Complete(ctx context.Context, prompt Prompt) (string, error)
		// Embed returns a fixed-dimensional embedding for text. The
		// dimensionality is constant for a given Backend instance.
		Embed(ctx context.Context, text string) ([]float32, error)
		// Dimension reports the embedding vector length this backend produces.
		Dimension() int
	}
)
