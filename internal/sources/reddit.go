package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chyiyaqing/trendbot/internal/config"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

type redditPost struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Permalink string  `json:"permalink"`
	SelfText  string  `json:"selftext"`
	IsSelf    bool    `json:"is_self"`
	Created   float64 `json:"created_utc"`
	Stickied  bool    `json:"stickied"`
	Over18    bool    `json:"over_18"`
}

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// fetchReddit reads a listing endpoint such as
// https://www.reddit.com/r/InteriorDesign/top.json?t=week.
func (f *Fetcher) fetchReddit(ctx context.Context, src config.Source, limit int) ([]trend.SupportingContentItem, error) {
	u, err := url.Parse(src.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	if q.Get("limit") == "" {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, src, u.String(), "application/json")
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if listing.Kind != "" && listing.Kind != "Listing" {
		return nil, fmt.Errorf("unexpected payload kind %q", listing.Kind)
	}

	base := u.Scheme + "://" + u.Host
	var items []trend.SupportingContentItem
	for _, child := range listing.Data.Children {
		if len(items) >= limit {
			break
		}
		p := child.Data
		if p.Stickied || p.Over18 || strings.TrimSpace(p.Title) == "" {
			continue
		}

		link := postLink(base, p)
		if link == "" {
			continue
		}

		var publishedAt *time.Time
		if p.Created > 0 {
			publishedAt = utc(time.Unix(int64(p.Created), 0))
		}

		items = append(items, trend.SupportingContentItem{
			Source:      src.Name,
			URL:         link,
			Title:       cleanText(p.Title),
			Excerpt:     cleanExcerpt(p.SelfText),
			PublishedAt: publishedAt,
		})
	}
	return items, nil
}

// postLink prefers the external article a post links to; self posts and
// media hosted by the board resolve to the discussion permalink.
func postLink(base string, p redditPost) string {
	if !p.IsSelf && strings.HasPrefix(p.URL, "http") && !isRedditMedia(p.URL) {
		return p.URL
	}
	if p.Permalink == "" {
		return p.URL
	}
	if strings.HasPrefix(p.Permalink, "http") {
		return p.Permalink
	}
	return base + p.Permalink
}

func isRedditMedia(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	return host == "i.redd.it" || host == "v.redd.it" || strings.HasSuffix(host, "reddit.com")
}
