// Package llm wraps the OpenAI-compatible completion API behind the
// Generator capability the extractor depends on.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fixbothq/fixbot/internal/config"
)

// Client issues single-turn completions against an OpenAI-compatible
// endpoint.
type Client struct {
	openai openai.Client
	model  string
	logger *slog.Logger
}

// New creates an extraction client from config. A missing API key is
// an error here; callers that want a degraded pipeline should skip
// construction and leave the extractor on its fallback.
func New(log *slog.Logger, cfg config.ExtractionConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extraction api key is required")
	}
	if log == nil {
		log = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultExtractionModel
	}

	return &Client{
		openai: openai.NewClient(opts...),
		model:  model,
		logger: log.With(slog.String("service", "llm")),
	}, nil
}

// Generate sends the prompt as the sole user turn and returns the raw
// response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Debug("llm generate completed",
		slog.String("model", c.model),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Int64("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// Model reports the configured model id, recorded in task extraction
// metadata.
func (c *Client) Model() string {
	return c.model
}
