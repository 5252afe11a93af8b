package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const healthCheckTimeout = 3 * time.Second

// Pinger checks that the trade database is reachable.
type Pinger interface {
	TestConnection(ctx context.Context) error
}

type healthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status and version, and probes the database
// when db is non-nil.
func RegisterHealthTool(s *server.MCPServer, version string, db Pinger, logger *zap.Logger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if db != nil {
			ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			defer cancel()
			if err := db.TestConnection(ctx); err != nil {
				logger.Warn("Database health check failed", zap.Error(err))
				result.Status = "degraded"
				result.Database = "unreachable"
			} else {
				result.Database = "ok"
			}
		}
		return jsonResult(result)
	})
}
