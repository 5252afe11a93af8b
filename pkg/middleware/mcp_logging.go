package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/logging"
)

const (
	// maxLoggedArgument is the longest argument value written to the log.
	maxLoggedArgument = 100
	// maxInspectedBody caps how much of a response is kept for inspection.
	maxInspectedBody = 64 << 10
)

// MCPRequestLogger returns middleware that logs MCP JSON-RPC calls with the
// tool name, sanitized arguments and whether the call failed.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// GET opens the SSE stream; only POST carries JSON-RPC.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			// The MCP handler reads the body again.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				// Still served; the handler answers with a parse error.
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}

			recorder := &mcpResponseRecorder{
				responseWriter: responseWriter{ResponseWriter: w, statusCode: http.StatusOK},
			}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			fields := []zap.Field{
				zap.String("method", rpcReq.Method),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
			}
			if rpcReq.Params.Name != "" {
				fields = append(fields,
					zap.String("tool", rpcReq.Params.Name),
					zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)))
			}

			if code, message, failed := recorder.failure(); failed {
				fields = append(fields, zap.Int("error_code", code), zap.String("error_message", message))
				logger.Warn("MCP call failed", fields...)
				return
			}
			logger.Debug("MCP call", fields...)
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result *struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mcpResponseRecorder keeps the first part of the response body so the
// outcome of a call can be logged.
type mcpResponseRecorder struct {
	responseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	if room := maxInspectedBody - r.body.Len(); room > 0 {
		r.body.Write(b[:min(len(b), room)])
	}
	return r.responseWriter.Write(b)
}

// failure reports a JSON-RPC error or a tool result flagged isError.
// Streamed (SSE) responses are not inspected.
func (r *mcpResponseRecorder) failure() (int, string, bool) {
	if r.statusCode >= http.StatusBadRequest {
		return r.statusCode, http.StatusText(r.statusCode), true
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(r.body.Bytes(), &resp); err != nil {
		// Truncated or event-stream bodies do not parse and count as success.
		return 0, "", false
	}
	switch {
	case resp.Error != nil:
		return resp.Error.Code, resp.Error.Message, true
	case resp.Result != nil && resp.Result.IsError:
		return 0, "tool returned an error result", true
	}
	return 0, "", false
}

// sanitizeArguments redacts credential-like keys and truncates long values.
// Conversation history is reduced to its size.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	sensitiveKeywords := []string{"password", "secret", "token", "key", "credential"}
	result := make(map[string]any, len(args))

	for k, v := range args {
		lowerKey := strings.ToLower(k)
		// History holds user text of any length; only its size is logged.
		if strings.Contains(lowerKey, "history") {
			if s, ok := v.(string); ok {
				result[k] = len(s)
				continue
			}
		}

		redact := false
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lowerKey, keyword) {
				redact = true
				break
			}
		}
		if redact {
			result[k] = "[REDACTED]"
			continue
		}

		if s, ok := v.(string); ok {
			result[k] = logging.TruncateString(s, maxLoggedArgument)
		} else {
			result[k] = v
		}
	}
	return result
}
