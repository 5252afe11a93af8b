package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/exim-agent/pkg/models"
)

// maxHistoryTurns bounds the history forwarded to the prompt.
const maxHistoryTurns = 20

// parseHistory decodes the optional history_json argument: a JSON array of
// {"role", "content"} turns. Only the most recent turns are kept.
func parseHistory(raw string) ([]models.ConversationTurn, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var turns []models.ConversationTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("history_json must be a JSON array of {role, content} objects: %w", err)
	}

	kept := turns[:0]
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		t.Role = t.NormalizedRole()
		kept = append(kept, t)
	}
	if len(kept) > maxHistoryTurns {
		kept = kept[len(kept)-maxHistoryTurns:]
	}
	return kept, nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
