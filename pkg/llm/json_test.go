package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "fenced block",
			response: "Here you go:\n```json\n{\"sql_query\": \"SELECT 1\"}\n```\nThanks",
			want:     `{"sql_query": "SELECT 1"}`,
		},
		{
			name:     "fence is case-insensitive",
			response: "```JSON\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "fence wins over earlier braces",
			response: "Note {draft}\n```json\n{\"a\": 2}\n```",
			want:     `{"a": 2}`,
		},
		{
			name:     "first fenced block only",
			response: "```json\n{\"a\": 1}\n```\n```json\n{\"a\": 2}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "bare object in prose",
			response: `The query is {"sql_query": "SELECT TOP 15 * FROM t", "answer": "ok"} as requested.`,
			want:     `{"sql_query": "SELECT TOP 15 * FROM t", "answer": "ok"}`,
		},
		{
			name:     "nested object",
			response: `{"a": {"b": 1}, "c": 2} trailing`,
			want:     `{"a": {"b": 1}, "c": 2}`,
		},
		{
			name:     "braces inside strings",
			response: `{"sql_query": "SELECT '}' AS x", "answer": "{not a brace}"}`,
			want:     `{"sql_query": "SELECT '}' AS x", "answer": "{not a brace}"}`,
		},
		{
			name:     "escaped quote inside string",
			response: `{"answer": "say \"}\" please"}`,
			want:     `{"answer": "say \"}\" please"}`,
		},
		{
			name:     "think block stripped",
			response: "<think>maybe {x}</think>\n{\"a\": 1}",
			want:     `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NotFound(t *testing.T) {
	for _, response := range []string{
		"",
		"I cannot answer that.",
		"unbalanced { \"a\": 1",
		"[1, 2, 3]",
	} {
		_, err := ExtractJSON(response)
		assert.ErrorIs(t, err, apperrors.ErrNoJSON, response)
	}
}

func TestParseQuerySpec(t *testing.T) {
	response := "```json\n" + `{
  "sql_query": "SELECT TOP 15 [Importer/Exporter_Name] FROM View_Clean_Imports",
  "answer": "Top importers",
  "query_type": "Data Pull",
  "is_time_series": "false",
  "chart_title": "Top 15 Importers"
}` + "\n```"

	spec, err := ParseQuerySpec(response)
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 15 [Importer/Exporter_Name] FROM View_Clean_Imports", spec.SQLQuery)
	assert.Equal(t, "Top importers", spec.Answer)
	assert.Equal(t, models.QueryTypeDataPull, spec.QueryType)
	assert.False(t, spec.IsTimeSeries)
	assert.Equal(t, "Top 15 Importers", spec.ChartTitle)
}

func TestParseQuerySpec_InvalidJSON(t *testing.T) {
	_, err := ParseQuerySpec(`{"sql_query": SELECT}`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNoJSON)
}
