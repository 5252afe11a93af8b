package models

import (
	"encoding/json"
	"strings"

	"github.com/ekaya-inc/exim-agent/pkg/jsonutil"
)

// QueryType is the model's classification of the question.
type QueryType string

const (
	QueryTypeAnalytical QueryType = "analytical"
	QueryTypeComparison QueryType = "comparison"
	QueryTypeDataPull   QueryType = "data_pull"
)

// ParseQueryType maps loose spellings to a known QueryType, defaulting to analytical.
func ParseQueryType(s string) QueryType {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch QueryType(normalized) {
	case QueryTypeComparison:
		return QueryTypeComparison
	case QueryTypeDataPull, "datapull":
		return QueryTypeDataPull
	default:
		return QueryTypeAnalytical
	}
}

// GeneratedQuerySpec is the JSON object the model returns for a question.
type GeneratedQuerySpec struct {
	SQLQuery     string    `json:"sql_query"`
	Answer       string    `json:"answer"`
	QueryType    QueryType `json:"query_type"`
	IsTimeSeries bool      `json:"is_time_series"`
	ChartTitle   string    `json:"chart_title"`
}

// UnmarshalJSON tolerates the scalar type drift models produce
// ("is_time_series": "true", numeric titles, unknown query types).
func (g *GeneratedQuerySpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		SQLQuery     json.RawMessage `json:"sql_query"`
		Answer       json.RawMessage `json:"answer"`
		QueryType    json.RawMessage `json:"query_type"`
		IsTimeSeries json.RawMessage `json:"is_time_series"`
		ChartTitle   json.RawMessage `json:"chart_title"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.SQLQuery = strings.TrimSpace(jsonutil.FlexibleStringValue(raw.SQLQuery))
	g.Answer = jsonutil.FlexibleStringValue(raw.Answer)
	g.QueryType = ParseQueryType(jsonutil.FlexibleStringValue(raw.QueryType))
	g.IsTimeSeries = jsonutil.FlexibleBoolValue(raw.IsTimeSeries)
	g.ChartTitle = jsonutil.FlexibleStringValue(raw.ChartTitle)
	return nil
}
