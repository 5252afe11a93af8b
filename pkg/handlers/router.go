package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/middleware"
)

// RouteRegistrar is implemented by every handler.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter builds the HTTP router with request ids, panic recovery and
// request logging. mcpHandler, when set, is mounted at /mcp.
func NewRouter(logger *zap.Logger, mcpHandler http.Handler, handlers ...RouteRegistrar) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	for _, h := range handlers {
		h.RegisterRoutes(r)
	}
	if mcpHandler != nil {
		r.Handle("/mcp", mcpHandler)
	}
	return r
}
