package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient generates completions with Anthropic's Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a Messages API client.
func NewAnthropicClient(opts Options, logger *zap.Logger) (*AnthropicClient, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required for anthropic")
	}

	var clientOpts []anthropic.ClientOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(strings.TrimSuffix(opts.BaseURL, "/")))
	}

	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts.APIKey, clientOpts...),
		model:     opts.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("anthropic"),
	}, nil
}

// Generate implements Completer.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	start := time.Now()

	temperature := float32(0)
	topK := 1
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
		TopK:        &topK,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("Completion request failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyModelError(err, c.model)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}

	out := &Completion{Text: b.String()}
	if strings.TrimSpace(out.Text) != "" {
		out.Candidates = 1
	}

	c.logger.Debug("Completion request completed",
		zap.String("model", c.model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return out, nil
}

// Model implements Completer.
func (c *AnthropicClient) Model() string {
	return c.model
}

var _ Completer = (*AnthropicClient)(nil)
