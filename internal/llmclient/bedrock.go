package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockInvoker interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock implements Backend on top of AWS Bedrock's Converse API. Like
// Anthropic, Bedrock's Converse API has no embedding endpoint, so Embed
// delegates to an injected fallback (typically an OpenAI or Titan-backed
// Backend).
type Bedrock struct {
	client       bedrockInvoker
	defaultModel string
	embedder     Backend
}

// BedrockOptions configures the Bedrock adapter.
type BedrockOptions struct {
	DefaultModel  string
	EmbedFallback Backend
}

// NewBedrock builds a Bedrock-backed Backend.
func NewBedrock(client bedrockInvoker, opts BedrockOptions) (*Bedrock, error) {
	if client == nil {
		return nil, errors.New("bedrock client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Bedrock{client: client, defaultModel: opts.DefaultModel, embedder: opts.EmbedFallback}, nil
}

// Complete invokes the Converse API with a single user turn.
func (b *Bedrock) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := prompt.Model
	if model == "" {
		model = b.defaultModel
	}
	input := &bedrockruntime.ConverseInput{
		ModelId: &model,
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt.User}},
			},
		},
	}
	if prompt.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: prompt.System}}
	}
	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return "", err
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock: unexpected output type %T", out.Output)
	}
	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, nil
}

// Embed delegates to the configured fallback embedder.
func (b *Bedrock) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.embedder == nil {
		return nil, errors.New("bedrock backend has no embedding fallback configured")
	}
	return b.embedder.Embed(ctx, text)
}

// Dimension delegates to the configured fallback embedder.
func (b *Bedrock) Dimension() int {
	if b.embedder == nil {
		return 0
	}
	return b.embedder.Dimension()
}
