package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability is part of the health report.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check and status endpoints.
type HealthHandler struct {
	mode      string
	actor     string
	startedAt time.Time
	deps      map[string]Pinger
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps may be empty; a nil entry is
// skipped.
func NewHealthHandler(mode, actor string, deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:      mode,
		actor:     actor,
		startedAt: time.Now().UTC(),
		deps:      deps,
		logger:    logger,
	}
}

// HealthCheck pings every dependency and reports 503 when any is down.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health dependency down",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			checks[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus reports the running mode and signing wallet.
// GET /api/status
func (h *HealthHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"actor":          h.actor,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
