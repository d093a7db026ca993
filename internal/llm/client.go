// Package llm wraps the OpenAI-compatible chat completion API behind the
// single-prompt surface the rest of the bot uses.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the model answers with no content
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Client sends prompts to a chat completion endpoint with a bounded call
// timeout. A timed-out call is a failure; it is never retried here
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// Options configures a Client
type Options struct {
	APIKey  string
	BaseURL string // empty = api.openai.com
	Model   string
	Timeout time.Duration
}

// NewClient creates a client for the configured endpoint
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: opts.Timeout,
	}, nil
}

// Complete sends a single user prompt and returns the model's text
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

// Ping issues a tiny completion to verify the endpoint is reachable. Used by
// the health command
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
	})
	return err
}
