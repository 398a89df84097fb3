package engine

import (
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// MarketStats summarises a market list at an instant.
type MarketStats struct {
	Total              int            `json:"total"`
	Active             int            `json:"active"`
	AwaitingResolution int            `json:"awaiting_resolution"`
	Resolved           int            `json:"resolved"`
	ByCategory         map[string]int `json:"by_category"`
}

// Stats counts markets by lifecycle state and category.
func Stats(markets []domain.Market, now time.Time) MarketStats {
	s := MarketStats{Total: len(markets), ByCategory: make(map[string]int)}
	for _, m := range markets {
		s.ByCategory[m.Category]++
		switch marketState(m, now) {
		case StateResolved:
			s.Resolved++
		case StateAwaitingResolution:
			s.AwaitingResolution++
		default:
			s.Active++
		}
	}
	return s
}

// AwaitingResolution returns the markets whose deadline has passed but which
// are not yet resolved.
func AwaitingResolution(markets []domain.Market, now time.Time) []domain.Market {
	var out []domain.Market
	for _, m := range markets {
		if marketState(m, now) == StateAwaitingResolution {
			out = append(out, m)
		}
	}
	return out
}
