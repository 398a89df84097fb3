package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/neonslash/neonvault/internal/domain"
)

// AuditHandler serves the persisted audit log and the live audit stream.
type AuditHandler struct {
	audit  domain.AuditStore
	stream domain.SignalBus
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler. Either source may be nil, which
// makes its route answer 503.
func NewAuditHandler(audit domain.AuditStore, stream domain.SignalBus, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, stream: stream, logger: logger}
}

// ListAudit returns audit entries. Without a time range the newest come
// first; with one they are chronological.
// GET /api/audit?event=stake&limit=50&offset=0&since=2026-03-01T00:00:00Z
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.Event = r.URL.Query().Get("event")
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

type streamEntry struct {
	ID    string          `json:"id"`
	Entry json.RawMessage `json:"entry"`
}

// TailAudit pages through the audit stream after a cursor. Clients pass the
// returned next value back as after to continue.
// GET /api/audit/stream?after=0&limit=100
func (h *AuditHandler) TailAudit(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "audit stream not configured")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	msgs, err := h.stream.StreamRead(r.Context(), domain.StreamAudit, after, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "tail audit", err)
		return
	}
	entries := make([]streamEntry, 0, len(msgs))
	next := after
	for _, m := range msgs {
		next = m.ID
		if !json.Valid(m.Payload) {
			continue
		}
		entries = append(entries, streamEntry{ID: m.ID, Entry: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"next":    next,
	})
}
