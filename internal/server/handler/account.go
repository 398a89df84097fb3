package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/neonslash/neonvault/internal/domain"
	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/service"
)

// AccountService reads a user's derived account state.
type AccountService interface {
	Account(ctx context.Context, user string) (service.AccountJSON, error)
	Bets(ctx context.Context, user string) ([]service.BetJSON, error)
}

// Inbox is the notification store the account handler reads and dismisses.
type Inbox interface {
	List(user string) []domain.Notification
	Dismiss(user, id string) bool
}

// AccountHandler serves per-address endpoints.
type AccountHandler struct {
	accounts AccountService
	inbox    Inbox
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, inbox Inbox, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, inbox: inbox, logger: logger}
}

// GetAccount returns points, stake, lock, bond and reward state.
// GET /api/accounts/{address}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	acct, err := h.accounts.Account(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ListBets returns the address's placed bets with claim states.
// GET /api/accounts/{address}/bets
func (h *AccountHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	bets, err := h.accounts.Bets(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "list bets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bets":  bets,
		"count": len(bets),
	})
}

// ListNotifications returns the address's live notifications, newest first.
// GET /api/accounts/{address}/notifications
func (h *AccountHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notify.Payloads(h.inbox.List(addr)),
	})
}

// DismissNotification removes one notification.
// DELETE /api/accounts/{address}/notifications/{id}
func (h *AccountHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if !h.inbox.Dismiss(addr, r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
