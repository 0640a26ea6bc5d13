package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

type searxngResponse struct {
	Query   string          `json:"query"`
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	PublishedDate string  `json:"publishedDate"`
	Score         float64 `json:"score"`
}

// SearXNG reports dates in several layouts depending on the engine.
var searxngDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (f *Fetcher) fetchSearXNG(ctx context.Context, src config.Source, limit int) ([]trend.SupportingContentItem, error) {
	u, err := url.Parse(src.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/search"

	q := u.Query()
	q.Set("q", src.Query)
	q.Set("format", "json")
	q.Set("categories", "news")
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, src, u.String(), "application/json")
	if err != nil {
		return nil, err
	}

	var resp searxngResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var items []trend.SupportingContentItem
	for _, r := range resp.Results {
		if len(items) >= limit {
			break
		}
		if r.URL == "" || strings.TrimSpace(r.Title) == "" {
			continue
		}
		items = append(items, trend.SupportingContentItem{
			Source:      src.Name,
			URL:         r.URL,
			Title:       cleanText(r.Title),
			Excerpt:     cleanExcerpt(r.Content),
			PublishedAt: parseSearxngDate(r.PublishedDate),
		})
	}
	return items, nil
}

func parseSearxngDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range searxngDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return utc(t)
		}
	}
	return nil
}
