package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cardio-ai/triage/internal/shared/config"
)

// Client is the raw text-generation capability: one prompt in, one completion
// out. Everything the dialogue needs is built as typed wrappers on top of it.
type Client interface {
	Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float32) (string, error)
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClient constructs an OpenAI-backed client from config.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		timeout: cfg.RequestTimeout,
	}
}

// Generate sends a single system+user exchange and returns the completion
// text. Every call is bounded by the configured request timeout.
func (c *OpenAIClient) Generate(ctx context.Context, prompt, system string, maxTokens int, temperature float32) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
