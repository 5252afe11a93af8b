package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/models"
	"github.com/ekaya-inc/exim-agent/pkg/services"
)

// maxChatBodyBytes bounds the request body, history included.
const maxChatBodyBytes = 1 << 20

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string                    `json:"message"`
	History []models.ConversationTurn `json:"history"`
}

// ChatHandler answers trade-data questions over HTTP.
type ChatHandler struct {
	agent  services.QueryAgent
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(agent services.QueryAgent, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{agent: agent, logger: logger}
}

// RegisterRoutes registers the chat route.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.Chat)
}

// Chat handles POST /api/chat. The agent reports every failure inside the
// response envelope, so only a missing message or an unreadable body is
// rejected here.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		h.logger.Debug("Invalid chat request body", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "No message provided"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	resp := h.agent.Ask(r.Context(), req.Message, req.History)
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}
