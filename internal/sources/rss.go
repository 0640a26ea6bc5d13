package sources

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

func (f *Fetcher) fetchRSS(ctx context.Context, src config.Source, limit int) ([]trend.SupportingContentItem, error) {
	body, err := f.get(ctx, src, src.Endpoint, "application/rss+xml, application/atom+xml, application/feed+json, */*")
	if err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []trend.SupportingContentItem
	for _, item := range feed.Items {
		if len(items) >= limit {
			break
		}

		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}
		if link == "" {
			continue
		}

		var publishedAt *time.Time
		if item.PublishedParsed != nil {
			publishedAt = utc(*item.PublishedParsed)
		} else if item.UpdatedParsed != nil {
			publishedAt = utc(*item.UpdatedParsed)
		}

		summary := item.Description
		if summary == "" && item.Content != "" {
			summary = item.Content
		}

		items = append(items, trend.SupportingContentItem{
			Source:      src.Name,
			URL:         link,
			Title:       cleanText(item.Title),
			Excerpt:     cleanExcerpt(summary),
			PublishedAt: publishedAt,
		})
	}
	return items, nil
}
