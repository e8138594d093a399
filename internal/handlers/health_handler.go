package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is satisfied by *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the record store is reachable
type HealthHandler struct {
	db     Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Serve handles GET /healthz
func (h *HealthHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		requestLogger(r, h.logger).Error("health check: database ping failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "error", Database: "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "connected"})
}
