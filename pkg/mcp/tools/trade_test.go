package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/exim-agent/pkg/apperrors"
	"github.com/ekaya-inc/exim-agent/pkg/models"
)

type recordingAgent struct {
	question string
	history  []models.ConversationTurn
}

func (a *recordingAgent) Ask(ctx context.Context, question string, history []models.ConversationTurn) *models.Response {
	a.question = question
	a.history = history
	return &models.Response{
		Answer:      "Export started.",
		Data:        []models.Row{},
		Query:       "SELECT * FROM View_Clean_Exports",
		QueryType:   models.QueryTypeDataPull,
		ExportJobID: "job-1",
	}
}

type mapJobs struct {
	jobs map[string]*models.ExportJob
	err  error
}

func (m mapJobs) Get(ctx context.Context, id string) (*models.ExportJob, error) {
	if m.err != nil {
		return nil, m.err
	}
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, apperrors.ErrNotFound
}

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type rpcResponse struct {
	Result *toolResult `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// callTool executes a tool through the server's HandleMessage method.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) rpcResponse {
	t.Helper()
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	out, err := json.Marshal(s.HandleMessage(context.Background(), req))
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func newTradeServer(t *testing.T, agent *recordingAgent, jobs JobReader) *server.MCPServer {
	t.Helper()
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterTradeTools(s, &TradeToolDeps{Agent: agent, Jobs: jobs, Logger: zaptest.NewLogger(t)})
	return s
}

func TestAskTradeDataTool(t *testing.T) {
	agent := &recordingAgent{}
	s := newTradeServer(t, agent, mapJobs{})

	resp := callTool(t, s, "ask_trade_data", map[string]any{
		"question":     "  full export data for zinc  ",
		"history_json": `[{"role":"human","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":""}]`,
	})

	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, "full export data for zinc", agent.question)
	assert.Equal(t, []models.ConversationTurn{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAgent, Content: "hello"},
	}, agent.history)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &envelope))
	assert.Equal(t, "job-1", envelope["export_job_id"])
	assert.Equal(t, "data_pull", envelope["query_type"])
	assert.Equal(t, []any{}, envelope["data"])
}

func TestAskTradeDataTool_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing question", map[string]any{}, "question is required"},
		{"blank question", map[string]any{"question": "  "}, "question is required"},
		{"bad history", map[string]any{"question": "zinc", "history_json": `{"role":"user"}`}, "history_json must be a JSON array"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := &recordingAgent{}
			resp := callTool(t, newTradeServer(t, agent, mapJobs{}), "ask_trade_data", tt.args)

			require.NotNil(t, resp.Result)
			assert.True(t, resp.Result.IsError)
			assert.Contains(t, resp.Result.Content[0].Text, tt.want)
			assert.Empty(t, agent.question)
		})
	}
}

func TestExportStatusTool(t *testing.T) {
	jobs := mapJobs{jobs: map[string]*models.ExportJob{
		"job-1": {ID: "job-1", Status: models.ExportReady, Progress: 100, File: "export_job-1.xlsx"},
	}}
	s := newTradeServer(t, &recordingAgent{}, jobs)

	resp := callTool(t, s, "export_status", map[string]any{"job_id": "job-1"})
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.IsError)
	assert.JSONEq(t, `{"job_id":"job-1","status":"ready","progress":100,"file":"export_job-1.xlsx"}`, resp.Result.Content[0].Text)

	resp = callTool(t, s, "export_status", map[string]any{"job_id": "missing"})
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &errResp))
	assert.Equal(t, "not_found", errResp.Code)
}

func TestExportStatusTool_StoreFailure(t *testing.T) {
	s := newTradeServer(t, &recordingAgent{}, mapJobs{err: fmt.Errorf("read job: %w", errors.New("database is locked"))})

	resp := callTool(t, s, "export_status", map[string]any{"job_id": "job-1"})

	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "failed to read export job")
}
