package synth

import (
	"fmt"
	"strings"

	"github.com/chyiyaqing/trendbot/internal/cluster"
	"github.com/chyiyaqing/trendbot/internal/trend"
)

var fallbackPalette = []string{"#F4EFE6", "#D9C7B0", "#A68A64", "#5B5248", "#2F2B28"}

func topKeywords(c cluster.Cluster, n int) []string {
	if len(c.Keywords) < n {
		n = len(c.Keywords)
	}
	return c.Keywords[:n]
}

func fallbackCopy(c cluster.Cluster, platforms []string) (string, []trend.SocialPost) {
	kw := topKeywords(c, 3)
	summary := fmt.Sprintf("%s is showing up across %d recent pieces.", titleCase(c.Name), len(c.Items))
	if len(kw) > 0 {
		summary += fmt.Sprintf(" Key themes: %s.", strings.Join(kw, ", "))
	}

	var assets []string
	for i, item := range c.Items {
		if i == 3 {
			break
		}
		assets = append(assets, item.URL)
	}

	posts := make([]trend.SocialPost, 0, len(platforms))
	for _, p := range platforms {
		posts = append(posts, trend.SocialPost{
			Platform: p,
			Hook:     fmt.Sprintf("Trend watch: %s", c.Name),
			Body:     summary,
			CTA:      "Save this for your next project.",
			Assets:   append([]string{}, assets...),
		})
	}
	return summary, posts
}

func fallbackConcepts(c cluster.Cluster) []trend.PosterConcept {
	mood := "calm, considered"
	if kw := topKeywords(c, 3); len(kw) > 0 {
		mood = strings.Join(kw, ", ")
	}
	return []trend.PosterConcept{{
		Title:        titleCase(c.Name),
		Mood:         mood,
		Layout:       "Full-bleed room photograph with the trend name set large in the lower third.",
		Palette:      append([]string{}, fallbackPalette...),
		CallToAction: "Explore the trend",
	}}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] -= 'a' - 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
