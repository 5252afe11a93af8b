package models

import "strings"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ConversationTurn is one message of the caller-supplied chat history.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NormalizedRole maps provider-style role names onto user/agent.
// Anything that is not the user is treated as the agent.
func (t ConversationTurn) NormalizedRole() Role {
	switch strings.ToLower(strings.TrimSpace(string(t.Role))) {
	case "user", "human":
		return RoleUser
	default:
		return RoleAgent
	}
}
