package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/partyrounds/session-backend/internal/hub"
	"github.com/partyrounds/session-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/sessions", CreateSession(h, log))
	r.Get("/sessions/{code}", SessionState(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))
	return r
}
