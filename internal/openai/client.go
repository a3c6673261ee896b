package openai

import (
	"context"
	"errors"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the fallback dimension when the model name
	// carries no hint
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the model used for generation and governance calls
	DefaultChatModel = openai.GPT4oMini
)

var (
	// ErrNoAPIKey is returned when the OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrNoEmbeddingData is returned when the API responds without vectors
	ErrNoEmbeddingData = errors.New("no embedding data returned")
	// ErrNoChoices is returned when a chat completion has no choices
	ErrNoChoices = errors.New("no completion choices returned")
)

// ModelDimensions resolves the expected embedding dimension from a model
// name: names containing "384" or "768" map to those sizes, everything else
// defaults to 1536.
func ModelDimensions(model string) int {
	switch {
	case strings.Contains(model, "384"):
		return 384
	case strings.Contains(model, "768"):
		return 768
	default:
		return DefaultEmbeddingDimensions
	}
}

// EmbeddingAdapter wraps the OpenAI embeddings endpoint.
type EmbeddingAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbeddingAdapter creates an adapter for the given API key and model.
func NewEmbeddingAdapter(apiKey string, model openai.EmbeddingModel) *EmbeddingAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &EmbeddingAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewEmbeddingAdapterFromEnv creates an adapter using OPENAI_API_KEY.
func NewEmbeddingAdapterFromEnv(model openai.EmbeddingModel) (*EmbeddingAdapter, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewEmbeddingAdapter(apiKey, model), nil
}

// Model returns the configured embedding model name.
func (a *EmbeddingAdapter) Model() string {
	return string(a.model)
}

// CreateEmbedding calls the OpenAI API to embed a single text.
func (a *EmbeddingAdapter) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingData
	}

	return resp.Data[0].Embedding, nil
}

// ChatAdapter wraps the OpenAI chat completions endpoint behind the narrow
// language-model interface the pipeline consumes.
type ChatAdapter struct {
	client *openai.Client
	model  string
}

// NewChatAdapter creates a chat adapter for the given API key and model.
func NewChatAdapter(apiKey, model string) *ChatAdapter {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// GenerateOptions carries per-call generation parameters.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

// Generate runs one chat completion over a system/user prompt pair. The
// system prompt may be empty.
func (a *ChatAdapter) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}
