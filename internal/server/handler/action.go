package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/neonslash/neonvault/internal/notify"
	"github.com/neonslash/neonvault/internal/service"
)

// ActionService runs the signing wallet's vault actions.
type ActionService interface {
	Actor() string
	Stake(ctx context.Context, amount string) (service.ActionResult, error)
	Withdraw(ctx context.Context, amount string) (service.ActionResult, error)
	ClaimYield(ctx context.Context) (service.ActionResult, error)
	PlaceBet(ctx context.Context, marketID uint64, prediction bool, amount string) (service.ActionResult, error)
	ClaimWinnings(ctx context.Context, marketID uint64) (service.ActionResult, error)
	CreateMarket(ctx context.Context, description, category string, duration time.Duration) (service.ActionResult, error)
	ResolveMarket(ctx context.Context, marketID uint64, result bool) (service.ActionResult, error)
	RedeemNFT(ctx context.Context) (service.ActionResult, error)
}

// ActionHandler exposes the wallet actions. Every request blocks until the
// transaction is confirmed or rejected.
type ActionHandler struct {
	actions ActionService
	logger  *slog.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(actions ActionService, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{actions: actions, logger: logger}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type betRequest struct {
	MarketID   uint64 `json:"market_id"`
	Prediction bool   `json:"prediction"`
	Amount     string `json:"amount"`
}

type claimRequest struct {
	MarketID uint64 `json:"market_id"`
}

type createMarketRequest struct {
	Description     string `json:"description"`
	Category        string `json:"category"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type resolveRequest struct {
	Result bool `json:"result"`
}

type actionResponse struct {
	Action       string                     `json:"action"`
	Actor        string                     `json:"actor"`
	TxHash       string                     `json:"tx_hash"`
	BlockNumber  uint64                     `json:"block_number"`
	GasUsed      uint64                     `json:"gas_used"`
	Notification *notify.NotificationPayload `json:"notification,omitempty"`
}

func (h *ActionHandler) respond(w http.ResponseWriter, r *http.Request, res service.ActionResult, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, "action", err)
		return
	}
	out := actionResponse{
		Action:      res.Action,
		Actor:       h.actions.Actor(),
		TxHash:      res.TxHash,
		BlockNumber: res.Receipt.BlockNumber,
		GasUsed:     res.Receipt.GasUsed,
	}
	if res.Notification.ID != "" {
		p := notify.Payload(res.Notification)
		out.Notification = &p
	}
	writeJSON(w, http.StatusOK, out)
}

// Stake deposits tokens, approving the vault first when needed.
// POST /api/actions/stake {"amount":"100.5"}
func (h *ActionHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.actions.Stake(r.Context(), req.Amount)
	h.respond(w, r, res, err)
}

// Withdraw withdraws staked tokens once the lock has elapsed.
// POST /api/actions/withdraw {"amount":"10"}
func (h *ActionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.actions.Withdraw(r.Context(), req.Amount)
	h.respond(w, r, res, err)
}

// ClaimYield claims the daily staking yield.
// POST /api/actions/claim-yield
func (h *ActionHandler) ClaimYield(w http.ResponseWriter, r *http.Request) {
	res, err := h.actions.ClaimYield(r.Context())
	h.respond(w, r, res, err)
}

// PlaceBet bets points on a market. An empty amount uses the default bet.
// POST /api/actions/bet {"market_id":3,"prediction":true,"amount":"50"}
func (h *ActionHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req betRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.actions.PlaceBet(r.Context(), req.MarketID, req.Prediction, req.Amount)
	h.respond(w, r, res, err)
}

// ClaimWinnings claims a won bet.
// POST /api/actions/claim {"market_id":3}
func (h *ActionHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.actions.ClaimWinnings(r.Context(), req.MarketID)
	h.respond(w, r, res, err)
}

// CreateMarket creates a market. Owner only.
// POST /api/actions/markets {"description":"...","category":"Gold","duration_seconds":7200}
func (h *ActionHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.actions.CreateMarket(r.Context(), req.Description, req.Category, time.Duration(req.DurationSeconds)*time.Second)
	h.respond(w, r, res, err)
}

// ResolveMarket settles a market. Owner only.
// POST /api/actions/markets/{id}/resolve {"result":true}
func (h *ActionHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "market id must be a positive integer")
		return
	}
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.actions.ResolveMarket(r.Context(), id, req.Result)
	h.respond(w, r, res, err)
}

// RedeemNFT redeems the reward NFT.
// POST /api/actions/redeem-nft
func (h *ActionHandler) RedeemNFT(w http.ResponseWriter, r *http.Request) {
	res, err := h.actions.RedeemNFT(r.Context())
	h.respond(w, r, res, err)
}
