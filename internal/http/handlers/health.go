package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hongminglow/all-in-iam/internal/http/respond"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler returns uptime and database reachability.
type HealthHandler struct {
	startedAt time.Time
	db        Pinger
}

// NewHealthHandler creates a health endpoint handler. db may be nil.
func NewHealthHandler(startedAt time.Time, db Pinger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Truncate(time.Second).String(),
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			respond.JSON(w, http.StatusServiceUnavailable, "database unreachable", status)
			return
		}
		status["database"] = "ok"
	}
	respond.JSON(w, http.StatusOK, "healthy", status)
}
