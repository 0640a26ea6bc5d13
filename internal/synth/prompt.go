package synth

import (
	"fmt"
	"strings"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

const (
	maxPromptItems   = 8
	maxPromptExcerpt = 280
)

const copySystemPrompt = `You are a social media strategist for an interior design studio.
Write short, concrete copy grounded only in the supplied articles.

Respond ONLY with valid JSON using standard ASCII double quotes. No other text:
{"summary":"...","socialPosts":[{"platform":"...","hook":"...","body":"...","cta":"...","assets":["..."]}]}`

const conceptsSystemPrompt = `You are an art director designing trend posters for an interior design studio.
Every palette color must be a hex code like #A1B2C3.

Respond ONLY with valid JSON using standard ASCII double quotes. No other text:
{"posterConcepts":[{"title":"...","mood":"...","layout":"...","palette":["#......"],"callToAction":"..."}]}`

func buildCopyPrompt(pc PromptContext) string {
	var sb strings.Builder
	writeThemeContext(&sb, pc)
	sb.WriteString("\nTasks:\n")
	sb.WriteString("1. summary: 2-3 sentences explaining the trend and why it is rising now.\n")
	fmt.Fprintf(&sb, "2. socialPosts: exactly one post for each platform in [%s], using those platform names verbatim.\n",
		strings.Join(pc.Platforms, ", "))
	sb.WriteString("   hook: one attention-grabbing line. body: 2-4 sentences. cta: one short call to action.\n")
	sb.WriteString("   assets: suggested visuals (photo ideas or article URLs from the list above).\n")
	return sb.String()
}

func buildConceptsPrompt(pc PromptContext) string {
	var sb strings.Builder
	writeThemeContext(&sb, pc)
	sb.WriteString("\nTasks:\n")
	sb.WriteString("Propose 2 poster concepts. For each give a title, a mood (a few adjectives), a layout description,\n")
	sb.WriteString("a palette of 3-5 hex colors that fit the trend, and a callToAction line.\n")
	return sb.String()
}

func writeThemeContext(sb *strings.Builder, pc PromptContext) {
	fmt.Fprintf(sb, "Trend: %s\n", pc.Theme)
	if len(pc.Keywords) > 0 {
		fmt.Fprintf(sb, "Keywords: %s\n", strings.Join(pc.Keywords, ", "))
	}
	sb.WriteString("\nArticles:\n")
	for i, item := range pc.Items {
		fmt.Fprintf(sb, "%d. %s (%s)\n", i+1, item.Title, item.Source)
		fmt.Fprintf(sb, "   URL: %s\n", item.URL)
		if item.Excerpt != "" {
			fmt.Fprintf(sb, "   %s\n", item.Excerpt)
		}
	}
}

// promptItems keeps the first items of a theme with short excerpts so the
// prompt size stays bounded.
func promptItems(items []trend.SupportingContentItem) []trend.SupportingContentItem {
	n := len(items)
	if n > maxPromptItems {
		n = maxPromptItems
	}
	out := make([]trend.SupportingContentItem, n)
	for i := 0; i < n; i++ {
		out[i] = items[i]
		if r := []rune(out[i].Excerpt); len(r) > maxPromptExcerpt {
			out[i].Excerpt = string(r[:maxPromptExcerpt]) + "..."
		}
	}
	return out
}
