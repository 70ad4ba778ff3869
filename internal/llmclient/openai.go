package llmclient

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openaiChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type openaiEmbeddingClient interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAI implements Backend on top of the Chat Completions and Embeddings
// APIs.
type OpenAI struct {
	chat         openaiChatClient
	embeddings   openaiEmbeddingClient
	defaultModel string
	embedModel   string
	dimension    int
}

// OpenAIOptions configures the OpenAI adapter.
type OpenAIOptions struct {
	DefaultModel string
	EmbedModel   string
	Dimension    int
}

// NewOpenAI builds an OpenAI-backed Backend.
func NewOpenAI(chat openaiChatClient, embeddings openaiEmbeddingClient, opts OpenAIOptions) (*OpenAI, error) {
	if chat == nil || embeddings == nil {
		return nil, errors.New("openai chat and embedding clients are required")
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = 384
	}
	return &OpenAI{
		chat: chat, embeddings: embeddings,
		defaultModel: opts.DefaultModel, embedModel: opts.EmbedModel, dimension: dim,
	}, nil
}

// Complete sends a single-turn chat completion request.
func (o *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := prompt.Model
	if model == "" {
		model = o.defaultModel
	}
	messages := []openai.ChatCompletionMessageParamUnion{}
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))
	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the first embedding vector returned for text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: o.embedModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimension returns the configured embedding length.
func (o *OpenAI) Dimension() int { return o.dimension }
