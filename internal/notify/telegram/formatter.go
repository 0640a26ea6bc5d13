package telegram

import (
	"fmt"
	"strings"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

const (
	maxKeywords = 5
	maxLinks    = 3
)

// FormatReport renders a report as a header message followed by one
// message per theme, in report order.
func FormatReport(r *trend.TrendReport) []string {
	msgs := make([]string, 0, len(r.Themes)+1)
	msgs = append(msgs, fmt.Sprintf("<b>🏠 Interior trends (%d themes, %d articles)</b>\n<i>Generated %s</i>",
		len(r.Themes), r.ItemCount(), r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")))
	for i, th := range r.Themes {
		msgs = append(msgs, formatTheme(i+1, th))
	}
	return msgs
}

func formatTheme(rank int, th trend.TrendTheme) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%d. %s</b>", rank, escapeHTML(th.Name)))

	if len(th.Keywords) > 0 {
		kw := th.Keywords
		if len(kw) > maxKeywords {
			kw = kw[:maxKeywords]
		}
		sb.WriteString(fmt.Sprintf("\n🏷 %s", escapeHTML(strings.Join(kw, ", "))))
	}
	if th.Summary != "" {
		sb.WriteString("\n" + escapeHTML(th.Summary))
	}
	for _, p := range th.SocialPosts {
		sb.WriteString(fmt.Sprintf("\n📣 <i>%s</i>: %s", escapeHTML(p.Platform), escapeHTML(p.Hook)))
	}
	if len(th.PosterConcepts) > 0 {
		p := th.PosterConcepts[0]
		sb.WriteString(fmt.Sprintf("\n🎨 %s (%s): %s", escapeHTML(p.Title), escapeHTML(p.Mood), escapeHTML(strings.Join(p.Palette, " "))))
	}
	for j, item := range th.SupportingContent {
		if j == maxLinks {
			sb.WriteString(fmt.Sprintf("\n… and %d more", len(th.SupportingContent)-maxLinks))
			break
		}
		sb.WriteString(fmt.Sprintf("\n🔗 <a href=\"%s\">%s</a> · %s", escapeHTML(item.URL), escapeHTML(item.Title), escapeHTML(item.Source)))
	}
	return sb.String()
}
