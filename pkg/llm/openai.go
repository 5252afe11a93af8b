package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient generates completions from OpenAI-compatible endpoints.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAIClient creates a client for the chat completions API.
func NewOpenAIClient(opts Options, logger *zap.Logger) (*OpenAIClient, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     opts.Model,
		maxTokens: opts.MaxOutputTokens,
		logger:    logger.Named("openai"),
	}, nil
}

// Generate implements Completer.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// A zero temperature is omitted from the request and the server
		// default applies, so send the smallest positive value instead.
		Temperature: math.SmallestNonzeroFloat32,
		TopP:        1,
		N:           1,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.Error("Completion request failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyModelError(err, c.model)
	}

	out := &Completion{}
	for _, choice := range resp.Choices {
		if strings.TrimSpace(choice.Message.Content) == "" {
			continue
		}
		if out.Candidates == 0 {
			out.Text = choice.Message.Content
		}
		out.Candidates++
	}

	c.logger.Debug("Completion request completed",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("candidates", out.Candidates),
		zap.Duration("elapsed", time.Since(start)))

	return out, nil
}

// Model implements Completer.
func (c *OpenAIClient) Model() string {
	return c.model
}

var _ Completer = (*OpenAIClient)(nil)
