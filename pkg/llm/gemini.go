package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// geminiSafetyCategories are blocked at medium probability and above.
var geminiSafetyCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// GeminiClient generates completions with Google's Gemini models.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini client. Close releases its connection.
func NewGeminiClient(ctx context.Context, opts Options, logger *zap.Logger) (*GeminiClient, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required for gemini")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(0)
	model.SetTopP(1)
	model.SetTopK(1)
	model.SetCandidateCount(1)
	if opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
	}
	model.SafetySettings = make([]*genai.SafetySetting, 0, len(geminiSafetyCategories))
	for _, category := range geminiSafetyCategories {
		model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockMediumAndAbove,
		})
	}

	return &GeminiClient{
		client: client,
		model:  model,
		name:   opts.Model,
		logger: logger.Named("gemini"),
	}, nil
}

// Generate implements Completer. A prompt or candidate blocked by the safety
// settings yields an empty completion rather than an error.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	start := time.Now()

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			c.logger.Warn("Completion blocked by safety settings",
				zap.String("model", c.name),
				zap.Error(err))
			return &Completion{}, nil
		}
		c.logger.Error("Completion request failed",
			zap.String("model", c.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyModelError(err, c.name)
	}

	out := &Completion{}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if strings.TrimSpace(b.String()) == "" {
			continue
		}
		if out.Candidates == 0 {
			out.Text = b.String()
		}
		out.Candidates++
	}

	fields := []zap.Field{
		zap.String("model", c.name),
		zap.Int("candidates", out.Candidates),
		zap.Duration("elapsed", time.Since(start)),
	}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount))
	}
	c.logger.Debug("Completion request completed", fields...)

	return out, nil
}

// Model implements Completer.
func (c *GeminiClient) Model() string {
	return c.name
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

var _ Completer = (*GeminiClient)(nil)
