package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePinger struct{ err error }

func (f fakePinger) TestConnection(ctx context.Context) error { return f.err }

func TestRegisterHealthTool(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "test-version", nil, zaptest.NewLogger(t))

	result := mcpServer.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.Len(t, response.Result.Tools, 1)
	assert.Equal(t, "health", response.Result.Tools[0].Name)
	assert.Equal(t, "Returns server health status and version", response.Result.Tools[0].Description)
}

func TestHealthTool_Execute(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want string
	}{
		{"no database", nil, `{"status":"ok","version":"1.2.3"}`},
		{"database up", fakePinger{}, `{"status":"ok","version":"1.2.3","database":"ok"}`},
		{"database down", fakePinger{err: errors.New("refused")}, `{"status":"degraded","version":"1.2.3","database":"unreachable"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
			RegisterHealthTool(mcpServer, "1.2.3", tt.db, zaptest.NewLogger(t))

			resp := callTool(t, mcpServer, "health", nil)

			require.NotNil(t, resp.Result)
			assert.JSONEq(t, tt.want, resp.Result.Content[0].Text)
		})
	}
}
