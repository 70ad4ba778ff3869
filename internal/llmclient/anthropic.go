// Package llmclient: Anthropic-backed Backend implementation.
package llmclient

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// messagesClient captures the subset of the Anthropic SDK used here so tests
// can substitute a fake without a live API key.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements Backend on top of the Claude Messages API. Embeddings
// are not exposed by Anthropic, so an Anthropic-backed Backend must be paired
// with a separate embedding-capable Backend (typically the OpenAI or stub
// adapter) via EmbedFallback.
type Anthropic struct {
	msg          messagesClient
	defaultModel string
	maxTokens    int
	embedder     Backend
}

// AnthropicOptions configures the Anthropic adapter.
type AnthropicOptions struct {
	DefaultModel string
	MaxTokens    int
	// EmbedFallback handles Embed calls since Anthropic has no embeddings API.
	EmbedFallback Backend
}

// NewAnthropic builds an Anthropic-backed Backend.
func NewAnthropic(msg messagesClient, opts AnthropicOptions) (*Anthropic, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens, embedder: opts.EmbedFallback}, nil
}

// Complete sends prompt as a single-turn Claude Messages request.
func (a *Anthropic) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := prompt.Model
	if model == "" {
		model = a.defaultModel
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(a.maxTokens),
		Model:     sdk.Model(model),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []sdk.TextBlockParam{{Text: prompt.System}}
	}
	resp, err := a.msg.New(ctx, params)
	if err != nil {
		return "", err
	}
	var out string
	for _, block := range resp.Content {
		if text := block.AsText(); text.Text != "" {
			out += text.Text
		}
	}
	return out, nil
}

// Embed delegates to the configured fallback embedder.
func (a *Anthropic) Embed(ctx context.Context, text string) ([]float32, error) {
	if a.embedder == nil {
		return nil, errors.New("anthropic backend has no embedding fallback configured")
	}
	return a.embedder.Embed(ctx, text)
}

// Dimension delegates to the configured fallback embedder.
func (a *Anthropic) Dimension() int {
	if a.embedder == nil {
		return 0
	}
	return a.embedder.Dimension()
}
