package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/neonslash/neonvault/internal/domain"
)

// PriceSource quotes the latest USD price of a crypto asset.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// DefaultPriceURL is the CoinMarketCap Pro API.
const DefaultPriceURL = "https://pro-api.coinmarketcap.com"

// CoinMarketCap reads latest quotes from the CoinMarketCap API.
type CoinMarketCap struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinMarketCap creates a quote client. perSec throttles requests; a
// non-positive value disables throttling.
func NewCoinMarketCap(baseURL, apiKey string, perSec float64) *CoinMarketCap {
	if baseURL == "" {
		baseURL = DefaultPriceURL
	}
	c := &CoinMarketCap{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	if perSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	return c
}

type cmcQuotes struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// Price returns the latest USD price of symbol.
func (c *CoinMarketCap) Price(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("convert", "USD")
	u := c.baseURL + "/v1/cryptocurrency/quotes/latest?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("agent/price: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("agent/price: http request: %w: %w", domain.ErrExternal, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("agent/price: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("agent/price: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 400:
		return 0, fmt.Errorf("agent/price: status %d: %w", resp.StatusCode, domain.ErrExternal)
	}

	var q cmcQuotes
	if err := json.Unmarshal(body, &q); err != nil {
		return 0, fmt.Errorf("agent/price: decode quotes: %w", err)
	}
	if q.Status.ErrorCode != 0 {
		return 0, fmt.Errorf("agent/price: %s: %w", q.Status.ErrorMessage, domain.ErrExternal)
	}
	price := q.Data[symbol].Quote["USD"].Price
	if price <= 0 {
		return 0, fmt.Errorf("agent/price: no USD quote for %s: %w", symbol, domain.ErrNotFound)
	}
	return price, nil
}
