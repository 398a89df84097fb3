package engine

import (
	"slices"

	"github.com/neonslash/neonvault/internal/domain"
)

const (
	// CategoryAll selects every category.
	CategoryAll = "All"
	// CategoryHistory switches the catalog to the user's bet history.
	CategoryHistory = "History"
	// DefaultPageSize is the number of active markets per page.
	DefaultPageSize = 6
)

// Categories lists the filters a dashboard offers, in display order.
var Categories = []string{CategoryAll, CategoryHistory, "Stocks", "Gold", "Football"}

// ListMode selects between the paginated active list and the history list.
type ListMode string

const (
	ModeActive  ListMode = "active"
	ModeHistory ListMode = "history"
)

// Page is one slice of a filtered market list.
type Page struct {
	Items     []domain.Market
	Page      int
	PageCount int
	Total     int
}

// FilterActive returns the unresolved markets of category in creation order.
// CategoryAll passes every category through.
func FilterActive(markets []domain.Market, category string) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.Resolved {
			continue
		}
		if category != CategoryAll && m.Category != category {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FilterHistory returns the markets the user holds a non-zero bet in, most
// recent first. bets is keyed by market ID.
func FilterHistory(markets []domain.Market, bets map[uint64]domain.Bet) []domain.Market {
	out := make([]domain.Market, 0)
	for _, m := range markets {
		if b, ok := bets[m.ID]; ok && b.Placed() {
			out = append(out, m)
		}
	}
	slices.Reverse(out)
	return out
}

// PageCount is ceil(n/size) with a minimum of one page.
func PageCount(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (n + size - 1) / size
	return max(1, pages)
}

// Paginate returns page of list. Out-of-range pages are clamped to the
// nearest valid page.
func Paginate(list []domain.Market, size, page int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	count := PageCount(len(list), size)
	page = min(max(page, 1), count)
	start := min((page-1)*size, len(list))
	end := min(start+size, len(list))
	return Page{
		Items:     slices.Clone(list[start:end]),
		Page:      page,
		PageCount: count,
		Total:     len(list),
	}
}

// CatalogView is what a dashboard renders for the current selection.
type CatalogView struct {
	Mode     ListMode
	Category string
	Page
}

// Browser keeps a user's category and page selection. It is not safe for
// concurrent use.
type Browser struct {
	category string
	page     int
	pageSize int
}

// NewBrowser starts on page 1 of CategoryAll.
func NewBrowser(pageSize int) *Browser {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Browser{category: CategoryAll, page: 1, pageSize: pageSize}
}

// SetCategory switches the filter and always returns to page 1.
func (b *Browser) SetCategory(category string) {
	if category == "" {
		category = CategoryAll
	}
	b.category = category
	b.page = 1
}

// SetPage selects a page; View clamps it to the available range.
func (b *Browser) SetPage(page int) { b.page = max(page, 1) }

// Next and Prev move one page; View clamps the result.
func (b *Browser) Next() { b.page++ }
func (b *Browser) Prev() { b.page = max(b.page-1, 1) }

func (b *Browser) Category() string { return b.category }
func (b *Browser) Page() int        { return b.page }

// View renders the selection over the given snapshot. History is returned
// as a single unpaginated list.
func (b *Browser) View(markets []domain.Market, bets map[uint64]domain.Bet) CatalogView {
	if b.category == CategoryHistory {
		list := FilterHistory(markets, bets)
		return CatalogView{
			Mode:     ModeHistory,
			Category: b.category,
			Page:     Page{Items: list, Page: 1, PageCount: 1, Total: len(list)},
		}
	}
	p := Paginate(FilterActive(markets, b.category), b.pageSize, b.page)
	b.page = p.Page
	return CatalogView{Mode: ModeActive, Category: b.category, Page: p}
}
