package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler serves liveness and store reachability checks.
type HealthHandler struct {
	pinger StorePinger
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pinger StorePinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		pinger: pinger,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storeStatus := "ok"
	status := "ok"
	code := http.StatusOK
	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "store ping failed", slog.String("error", err.Error()))
		storeStatus = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	render.Status(r, code)
	render.JSON(w, r, &HealthResponse{
		Status:    status,
		Store:     storeStatus,
		Timestamp: time.Now().UTC(),
	})
}
