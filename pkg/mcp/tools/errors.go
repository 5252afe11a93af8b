package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse is a structured error returned as a tool result, so the
// calling model sees the code and message instead of a protocol error.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for errors the caller can act on (bad arguments, unknown job).
// System failures are returned as Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}
