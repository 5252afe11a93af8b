package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/llm"
	"github.com/ekaya-inc/exim-agent/pkg/models"
	"github.com/ekaya-inc/exim-agent/pkg/prompts"
)

// InsightGenerator writes the short narrative shown above a result.
// Narratives are optional: every failure yields an empty string.
type InsightGenerator struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewInsightGenerator creates an insight generator.
func NewInsightGenerator(completer llm.Completer, logger *zap.Logger) *InsightGenerator {
	return &InsightGenerator{
		completer: completer,
		logger:    logger.Named("insight"),
	}
}

// Generate returns a 3-5 sentence narrative for the question grounded in
// stats, or "" when rows or stats are missing or the completion fails.
func (g *InsightGenerator) Generate(ctx context.Context, question string, rows []models.Row, stats *models.SummaryStats) string {
	prompt, ok := prompts.BuildInsightPrompt(question, rows, stats)
	if !ok {
		g.logger.Debug("No summary statistics, skipping insight")
		return ""
	}

	completion, err := g.completer.Generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("Insight generation failed", zap.Error(err))
		return ""
	}
	if completion.Empty() {
		g.logger.Warn("Insight completion was empty")
		return ""
	}
	return strings.TrimSpace(completion.Text)
}
