package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/neonslash/neonvault/internal/service"
)

// BridgeService starts and lists the signing wallet's CCTP transfers.
type BridgeService interface {
	Start(ctx context.Context, user string, req service.BridgeRequest) (service.TransferJSON, error)
	Transfers(user string) []service.TransferJSON
}

// BridgeHandler serves bridge endpoints for the signing wallet.
type BridgeHandler struct {
	bridge BridgeService
	actor  string
	logger *slog.Logger
}

// NewBridgeHandler creates a BridgeHandler acting for actor.
func NewBridgeHandler(bridge BridgeService, actor string, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{bridge: bridge, actor: actor, logger: logger}
}

// StartTransfer burns on the source chain and returns once the burn is
// confirmed. Attestation and mint progress arrive as notifications.
// POST /api/bridge {"source_chain_id":84532,"amount":"25"}
func (h *BridgeHandler) StartTransfer(w http.ResponseWriter, r *http.Request) {
	if h.actor == "" {
		writeError(w, http.StatusServiceUnavailable, "no signer configured")
		return
	}
	var req service.BridgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.bridge.Start(r.Context(), h.actor, req)
	if err != nil {
		writeServiceError(w, r, h.logger, "bridge start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

// ListTransfers returns the wallet's transfers, newest first.
// GET /api/bridge/transfers
func (h *BridgeHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers := h.bridge.Transfers(h.actor)
	if transfers == nil {
		transfers = []service.TransferJSON{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transfers": transfers,
		"count":     len(transfers),
	})
}
