package agent

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neonslash/neonvault/internal/domain"
)

// maxHeadlines bounds how many matching headlines one fetch keeps.
const maxHeadlines = 5

// FallbackHeadlines are used when the feed cannot be read.
var FallbackHeadlines = []string{
	"Bitcoin Momentum: Experts predict $150k target",
	"AI Spending Surge impacts Amazon share value",
	"Meta faces AI-related cost concerns",
}

type rssDocument struct {
	Items []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title string `xml:"title"`
}

// NewsFeed reads headlines from an RSS feed and keeps those that mention
// one of its keywords.
type NewsFeed struct {
	url      string
	keywords []string
	client   *http.Client
}

// NewNewsFeed creates a NewsFeed. Keywords are matched case-insensitively.
func NewNewsFeed(url string, keywords []string) *NewsFeed {
	upper := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" {
			upper = append(upper, k)
		}
	}
	return &NewsFeed{
		url:      url,
		keywords: upper,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Headlines fetches the feed and returns up to five matching titles in feed
// order.
func (f *NewsFeed) Headlines(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: news request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: news fetch: %w: %w", domain.ErrExternal, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent: news fetch: status %d: %w", resp.StatusCode, domain.ErrExternal)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("agent: news read: %w", err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("agent: news parse: %w", err)
	}
	var out []string
	for _, item := range doc.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" || !f.matches(title) {
			continue
		}
		out = append(out, title)
		if len(out) == maxHeadlines {
			break
		}
	}
	return out, nil
}

func (f *NewsFeed) matches(title string) bool {
	upper := strings.ToUpper(title)
	for _, k := range f.keywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return false
}
