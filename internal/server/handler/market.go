package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/neonslash/neonvault/internal/engine"
	"github.com/neonslash/neonvault/internal/service"
)

// CatalogService defines the read queries the market handler needs. It is
// declared locally so the handler package does not depend on the concrete
// service implementation.
type CatalogService interface {
	Browse(ctx context.Context, user, category string, page int) (service.CatalogPage, error)
	Market(ctx context.Context, id uint64) (service.MarketJSON, error)
	Stats(ctx context.Context) (engine.MarketStats, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(catalog CatalogService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{catalog: catalog, logger: logger}
}

// ListMarkets returns one catalog page.
// GET /api/markets?category=Football&page=1&user=0x...
//
// category "History" lists the user's placed bets and requires user. Pages
// outside the valid range are clamped.
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		page = n
	}

	category := q.Get("category")
	if category == "" {
		category = engine.CategoryAll
	}
	user := strings.TrimSpace(q.Get("user"))
	if user != "" && !common.IsHexAddress(user) {
		writeError(w, http.StatusBadRequest, "user must be a hex address")
		return
	}
	if category == engine.CategoryHistory && user == "" {
		writeError(w, http.StatusBadRequest, "History requires a user")
		return
	}

	out, err := h.catalog.Browse(r.Context(), user, category, page)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket returns a single projected market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "market id must be a positive integer")
		return
	}

	market, err := h.catalog.Market(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// GetStats returns market counts by lifecycle state and category.
// GET /api/markets/stats
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "market stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
