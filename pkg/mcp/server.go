package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/mcp/tools"
	"github.com/ekaya-inc/exim-agent/pkg/middleware"
)

// ServerName is advertised to MCP clients.
const ServerName = "exim-agent"

// Deps contains everything the tool set needs.
type Deps struct {
	Trade   *tools.TradeToolDeps
	DB      tools.Pinger
	Version string
}

// Server wraps the mcp-go MCPServer and its tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the MCP server with every tool registered.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	logger = logger.Named("mcp")
	mcpServer := server.NewMCPServer(
		ServerName,
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	tools.RegisterHealthTool(mcpServer, deps.Version, deps.DB, logger)
	if deps.Trade != nil {
		tools.RegisterTradeTools(mcpServer, deps.Trade)
	}

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns the stateless streamable HTTP transport with call
// logging. The router mounts it at /mcp.
func (s *Server) Handler() http.Handler {
	transport := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
	return middleware.MCPRequestLogger(s.logger)(transport)
}
