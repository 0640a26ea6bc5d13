package sources

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const maxExcerptRunes = 500

// Enricher returns the readable text of the page at url within timeout.
type Enricher func(ctx context.Context, url string, timeout time.Duration) (string, error)

// ReadabilityExcerpt extracts the main article text with go-readability.
func ReadabilityExcerpt(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	article, err := readability.FromURL(url, timeout)
	if err != nil {
		return "", err
	}
	if article.Excerpt != "" {
		return article.Excerpt, nil
	}
	return article.TextContent, nil
}

// cleanExcerpt strips markup and truncates.
func cleanExcerpt(s string) string {
	return truncate(cleanText(stripTags(s)), maxExcerptRunes)
}

// stripTags returns the text content of an HTML fragment. Plain text passes
// through unchanged.
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript, iframe").Remove()
	return doc.Text()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(r[:maxLen])) + "..."
}

func utc(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
