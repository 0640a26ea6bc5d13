// Package trend holds the report model shared by every pipeline stage.
package trend

import "time"

// SupportingContentItem is one piece of evidence behind a theme.
type SupportingContentItem struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

type SocialPost struct {
	Platform string   `json:"platform"`
	Hook     string   `json:"hook"`
	Body     string   `json:"body"`
	CTA      string   `json:"cta"`
	Assets   []string `json:"assets"`
}

type PosterConcept struct {
	Title        string   `json:"title"`
	Mood         string   `json:"mood"`
	Layout       string   `json:"layout"`
	Palette      []string `json:"palette"`
	CallToAction string   `json:"callToAction"`
}

// TrendTheme is a named cluster of items with its synthesized creative output.
// SupportingContent is never empty.
type TrendTheme struct {
	Name              string                  `json:"name"`
	Keywords          []string                `json:"keywords"`
	Summary           string                  `json:"summary"`
	SocialPosts       []SocialPost            `json:"socialPosts"`
	PosterConcepts    []PosterConcept         `json:"posterConcepts"`
	SupportingContent []SupportingContentItem `json:"supportingContent"`
}

// TrendReport is built once and never mutated afterwards. GeneratedAt is the
// build time, not the time a caller received it.
type TrendReport struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Themes      []TrendTheme `json:"themes"`
}

// ItemCount returns the number of supporting items across all themes.
func (r *TrendReport) ItemCount() int {
	n := 0
	for _, t := range r.Themes {
		n += len(t.SupportingContent)
	}
	return n
}
