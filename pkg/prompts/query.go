package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// Views the model chooses between.
const (
	ImportsView = "View_Clean_Imports"
	ExportsView = "View_Clean_Exports"
)

//go:embed examples.yaml
var examplesYAML []byte

// Example is a worked question/response pair shown to the model.
type Example struct {
	Name     string          `yaml:"name"`
	Question string          `yaml:"question"`
	Response exampleResponse `yaml:"response"`
}

type exampleResponse struct {
	SQLQuery     string `yaml:"sql_query"`
	Answer       string `yaml:"answer"`
	QueryType    string `yaml:"query_type"`
	IsTimeSeries bool   `yaml:"is_time_series"`
	ChartTitle   string `yaml:"chart_title"`
}

// Spec converts the example response into the output contract type.
func (e Example) Spec() models.GeneratedQuerySpec {
	return models.GeneratedQuerySpec{
		SQLQuery:     strings.TrimSpace(e.Response.SQLQuery),
		Answer:       e.Response.Answer,
		QueryType:    models.ParseQueryType(e.Response.QueryType),
		IsTimeSeries: e.Response.IsTimeSeries,
		ChartTitle:   e.Response.ChartTitle,
	}
}

func (e Example) validate() error {
	if strings.TrimSpace(e.Response.SQLQuery) == "" {
		return fmt.Errorf("example %q: sql_query is empty", e.Name)
	}
	return nil
}

// writeTo renders the example as its question followed by the expected
// JSON response.
func (e Example) writeTo(w io.Writer) error {
	if err := e.validate(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\nExample (%s) for %q:\n", e.Name, e.Question); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.Spec()); err != nil {
		return fmt.Errorf("example %q: %w", e.Name, err)
	}
	return nil
}

// ParseExamples decodes a YAML list of examples.
func ParseExamples(data []byte) ([]Example, error) {
	var examples []Example
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("parse examples: %w", err)
	}
	for i, e := range examples {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
	}
	return examples, nil
}

// DefaultExamples returns the embedded worked examples.
func DefaultExamples() []Example {
	examples, err := ParseExamples(examplesYAML)
	if err != nil {
		// examples.yaml is embedded and covered by tests.
		panic(err)
	}
	return examples
}

// QueryPromptInput carries everything the query prompt embeds.
type QueryPromptInput struct {
	Schema   string
	History  []models.ConversationTurn
	Question string
	Examples []Example
}

// BuildQueryPrompt creates the prompt that turns a question into a
// GeneratedQuerySpec JSON object. The rules cover view selection, column
// usage, query_type classification and the SQL patterns that keep queries
// fast on the fact views. A worked example that cannot be rendered fails
// the whole prompt rather than leaving it truncated.
func BuildQueryPrompt(in QueryPromptInput) (string, error) {
	var p strings.Builder

	p.WriteString("You are an expert SQL Server analyst. Your task is to help a user get insights from their import/export trade data.\n")
	p.WriteString("You must follow the rules below exactly.\n\n")

	p.WriteString("--- START SCHEMA ---\n")
	p.WriteString(in.Schema)
	p.WriteString("\n--- END SCHEMA ---\n\n")

	p.WriteString("--- CRITICAL: TABLE SELECTION RULES ---\n")
	p.WriteString("You have TWO views. Choose exactly one based on the user's question:\n")
	fmt.Fprintf(&p, "1. `%s` (IMPORTS): questions about imports, \"import data\", buying, purchases, bill of entry.\n", ImportsView)
	p.WriteString("   Date column: `BE_Date`. Company column: `[Importer/Exporter_Name]` (the importer).\n")
	fmt.Fprintf(&p, "2. `%s` (EXPORTS): questions about exports, \"export data\", shipping bills, selling, shipments.\n", ExportsView)
	p.WriteString("   Date column: `SB_Date`. Company column: `[Importer/Exporter_Name]` (the exporter).\n")
	fmt.Fprintf(&p, "If the user says \"from imports\" you MUST use `%s`; if they say \"from exports\" you MUST use `%s`.\n", ImportsView, ExportsView)
	fmt.Fprintf(&p, "When the question names neither direction, use `%s`.\n\n", ImportsView)

	p.WriteString("--- CRITICAL: COLUMN USAGE RULES ---\n")
	p.WriteString("1. Company names: ALWAYS use `[Importer/Exporter_Name]`. NEVER use `Importer_Name` or `Exporter_Name`.\n")
	p.WriteString("2. Short names: if the user asks for a \"formatted name\" or \"short name\", use `[Formatted_Name]`.\n")
	p.WriteString("3. Products: use `Product_Name` for full names; filter with `Product_Name LIKE '%term%'` (the system normalizes it).\n")
	p.WriteString("4. Values: default to `[Total_Value_INR]` for cost or value questions. Quantities are `[Quantity_KG]`.\n")
	p.WriteString("5. Always enclose column names with special characters in square brackets.\n\n")

	p.WriteString("--- START CONVERSATION HISTORY ---\n")
	for _, turn := range in.History {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if turn.NormalizedRole() == models.RoleUser {
			p.WriteString("User: ")
		} else {
			p.WriteString("Agent: ")
		}
		p.WriteString(content)
		p.WriteString("\n")
	}
	p.WriteString("--- END CONVERSATION HISTORY ---\n\n")

	p.WriteString("Use the history for context, but answer the user's NEWEST question:\n")
	fmt.Fprintf(&p, "%q\n\n", in.Question)

	p.WriteString("--- RESPONSE LOGIC: query_type ---\n")
	p.WriteString("Set exactly ONE query_type:\n")
	p.WriteString("1. \"analytical\" (DEFAULT): aggregations such as \"top 5 importers\" or \"total value of exports\". Use `TOP 15` for broad ranking questions so charts stay readable.\n")
	p.WriteString("2. \"comparison\": direct comparisons of two or more entities, modes or periods (\"product A vs product B\", \"this year vs last year\").\n")
	p.WriteString("3. \"data_pull\": ONLY when the user asks for a list, table, raw data or \"show me the data\". Use `SELECT TOP 50` by default.\n")
	p.WriteString("   If the user asks for a \"full list\", \"all data\", \"full data\", \"full export\" or \"complete\" data, remove the TOP limit.\n")
	p.WriteString("The answer is always a brief one-sentence introduction to the results.\n\n")

	p.WriteString("--- CRITICAL: CATEGORY ANALYSIS RULE ---\n")
	p.WriteString("When asked to analyze or compare a broad category (\"analyze zinc products\"), NEVER collapse it into one row.\n")
	p.WriteString("GROUP BY Product_Name, select Product_Name and the requested metrics, and filter the category in WHERE.\n\n")

	p.WriteString("--- CRITICAL: SINGLE-ENTITY TIME COMPARISON RULE ---\n")
	p.WriteString("When comparing ONE entity across time periods, DO NOT pivot periods into columns.\n")
	p.WriteString("Return one row per period with UNION ALL and a literal `Period` label column.\n\n")

	p.WriteString("--- CRITICAL: DATE FILTERING RULE (PERFORMANCE) ---\n")
	p.WriteString("NEVER wrap the date column in a function (such as YEAR()) inside WHERE or CASE; it forces a full scan.\n")
	p.WriteString("BAD:  WHERE YEAR(SB_Date) = 2024\n")
	p.WriteString("GOOD: WHERE SB_Date >= '2024-01-01' AND SB_Date < '2025-01-01'\n")
	p.WriteString("BAD:  WHERE YEAR(BE_Date) = YEAR(GETDATE()) - 1\n")
	p.WriteString("GOOD: WHERE BE_Date >= DATEFROMPARTS(YEAR(GETDATE()) - 1, 1, 1) AND BE_Date < DATEFROMPARTS(YEAR(GETDATE()), 1, 1)\n\n")

	p.WriteString("--- CRITICAL: TOP N RULE ---\n")
	p.WriteString("For \"top N\" per group or \"top N\" with further metrics, find the top N in a CTE first and join against it,\n")
	p.WriteString("or rank inside a CTE with ROW_NUMBER() OVER (PARTITION BY ... ORDER BY ...). Never use correlated subqueries.\n\n")

	p.WriteString("--- CRITICAL: WEIGHTED AVERAGE RULE ---\n")
	p.WriteString("Average prices MUST be weighted: SUM([Total_Value_INR]) / NULLIF(SUM([Quantity_KG]), 0) AS WeightedAvgPrice_INR\n")
	p.WriteString("Always use NULLIF to prevent divide-by-zero errors.\n\n")

	p.WriteString("--- CRITICAL: is_time_series RULE ---\n")
	p.WriteString("Set is_time_series to true ONLY if the query groups by a date or period (daily, monthly, yearly, \"over time\", \"trend\").\n")
	p.WriteString("Otherwise set it to false.\n\n")

	p.WriteString("--- OUTPUT FORMAT ---\n")
	p.WriteString("Return a single valid JSON object with exactly these keys:\n")
	p.WriteString("- \"sql_query\": the T-SQL query (a single SELECT statement)\n")
	p.WriteString("- \"answer\": brief one-sentence introduction\n")
	p.WriteString("- \"query_type\": \"analytical\" | \"comparison\" | \"data_pull\"\n")
	p.WriteString("- \"is_time_series\": true | false\n")
	p.WriteString("- \"chart_title\": descriptive chart title\n")

	for _, e := range in.Examples {
		if err := e.writeTo(&p); err != nil {
			return "", fmt.Errorf("render worked example: %w", err)
		}
	}

	return p.String(), nil
}
