package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/exim-agent/pkg/llm"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

func insightStats() *models.SummaryStats {
	total := 3000.0
	return &models.SummaryStats{EntityLabel: "Company", TotalRecords: 2, TotalEntities: 2, TotalValueINR: &total}
}

func insightRows() []models.Row {
	return []models.Row{
		models.NewRow([]string{"Importer/Exporter_Name"}, []any{"ACME METALS"}),
	}
}

func TestInsightGenerator_Generate(t *testing.T) {
	completer := llm.NewMockCompleter("  ACME METALS dominates the market.\n")
	g := NewInsightGenerator(completer, zaptest.NewLogger(t))

	got := g.Generate(context.Background(), "top zinc importers", insightRows(), insightStats())

	assert.Equal(t, "ACME METALS dominates the market.", got)
	assert.Contains(t, completer.Prompts()[0], "top zinc importers")
}

func TestInsightGenerator_ReturnsEmpty(t *testing.T) {
	tests := []struct {
		name      string
		completer *llm.MockCompleter
		rows      []models.Row
		stats     *models.SummaryStats
		wantCalls int
	}{
		{name: "no stats", completer: llm.NewMockCompleter("text"), rows: insightRows(), wantCalls: 0},
		{name: "no rows", completer: llm.NewMockCompleter("text"), stats: insightStats(), wantCalls: 0},
		{name: "empty completion", completer: llm.NewMockCompleter(""), rows: insightRows(), stats: insightStats(), wantCalls: 1},
		{
			name: "provider error",
			completer: &llm.MockCompleter{GenerateFunc: func(ctx context.Context, prompt string) (*llm.Completion, error) {
				return nil, errors.New("boom")
			}},
			rows:      insightRows(),
			stats:     insightStats(),
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewInsightGenerator(tt.completer, zaptest.NewLogger(t))
			assert.Empty(t, g.Generate(context.Background(), "q", tt.rows, tt.stats))
			assert.Equal(t, tt.wantCalls, tt.completer.Calls())
		})
	}
}

func TestExportStartedMessage(t *testing.T) {
	assert.Equal(t, "answer\n\n⏳ The dataset contains **1,234,567 rows**. I am preparing a downloadable Excel file...",
		exportStartedMessage("answer", "", 1234567))
}
