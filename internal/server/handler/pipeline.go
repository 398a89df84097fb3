package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// PipelineHandler serves manual triggers for background jobs.
type PipelineHandler struct {
	archive func(ctx context.Context) error
	running atomic.Bool
	ctx     context.Context
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler. archive may be nil when
// archival is disabled. Triggered runs use ctx, which should outlive the
// request.
func NewPipelineHandler(ctx context.Context, archive func(ctx context.Context) error, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{archive: archive, ctx: ctx, logger: logger}
}

// TriggerArchive starts one archive run in the background. A run already in
// progress is not duplicated.
// POST /api/pipeline/archive
func (h *PipelineHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archival is disabled")
		return
	}
	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "archive run already in progress")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: archive trigger requested")
	go func() {
		defer h.running.Store(false)
		if err := h.archive(h.ctx); err != nil {
			h.logger.ErrorContext(h.ctx, "handler: triggered archive failed", slog.String("error", err.Error()))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
