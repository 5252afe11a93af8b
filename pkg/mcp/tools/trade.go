package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
	"github.com/ekaya-inc/exim-agent/pkg/services"
)

// JobReader looks up export jobs.
type JobReader interface {
	Get(ctx context.Context, id string) (*models.ExportJob, error)
}

// TradeToolDeps contains the dependencies of the trade-data tools.
type TradeToolDeps struct {
	Agent  services.QueryAgent
	Jobs   JobReader
	Logger *zap.Logger
}

// RegisterTradeTools adds ask_trade_data and export_status to the server.
func RegisterTradeTools(s *server.MCPServer, deps *TradeToolDeps) {
	registerAskTradeDataTool(s, deps)
	registerExportStatusTool(s, deps)
}

func registerAskTradeDataTool(s *server.MCPServer, deps *TradeToolDeps) {
	tool := mcp.NewTool(
		"ask_trade_data",
		mcp.WithDescription(
			"Answer a natural-language question about import/export shipment data. "+
				"Returns JSON with the answer, result rows, the SQL that was run, chart_title, "+
				"query_type and is_time_series. Results above the export threshold are not "+
				"inlined: export_job_id is set instead; poll export_status with it.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question, e.g. \"top 10 zinc importers last year\""),
		),
		mcp.WithString(
			"history_json",
			mcp.Description("Optional: earlier turns as a JSON array of {\"role\": \"user\"|\"agent\", \"content\": \"...\"}"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}

		history, err := parseHistory(req.GetString("history_json", ""))
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		resp := deps.Agent.Ask(ctx, strings.TrimSpace(question), history)
		return jsonResult(resp)
	})
}

func registerExportStatusTool(s *server.MCPServer, deps *TradeToolDeps) {
	tool := mcp.NewTool(
		"export_status",
		mcp.WithDescription("Report the progress of a spreadsheet export started by ask_trade_data. "+
			"Status is processing, ready or error; file is set once ready."),
		mcp.WithString(
			"job_id",
			mcp.Required(),
			mcp.Description("The export_job_id returned by ask_trade_data"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("job_id")
		if err != nil || strings.TrimSpace(id) == "" {
			return NewErrorResult("invalid_parameters", "job_id is required"), nil
		}
		id = strings.TrimSpace(id)

		job, err := deps.Jobs.Get(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return NewErrorResult("not_found", fmt.Sprintf("no export job %q", id)), nil
		}
		if err != nil {
			deps.Logger.Error("Failed to read export job", zap.String("job_id", id), zap.Error(err))
			return nil, fmt.Errorf("failed to read export job: %w", err)
		}
		return jsonResult(job)
	})
}
