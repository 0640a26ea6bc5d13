package synth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

var hexColorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// validateCopy rejects the whole draft when any post is unusable. Repeated
// platforms keep only their first post.
func (s *Synthesizer) validateCopy(d copyDraft) (string, []trend.SocialPost, error) {
	summary := strings.TrimSpace(d.Summary)
	if summary == "" {
		return "", nil, errors.New("summary is empty")
	}
	if len(d.SocialPosts) == 0 {
		return "", nil, errors.New("no social posts")
	}

	seen := make(map[string]bool, len(d.SocialPosts))
	posts := make([]trend.SocialPost, 0, len(d.SocialPosts))
	for i, p := range d.SocialPosts {
		platform := strings.ToLower(strings.TrimSpace(p.Platform))
		if !s.allowed[platform] {
			return "", nil, fmt.Errorf("post %d: platform %q not allowed", i+1, p.Platform)
		}
		p.Platform = platform
		p.Hook = strings.TrimSpace(p.Hook)
		p.Body = strings.TrimSpace(p.Body)
		p.CTA = strings.TrimSpace(p.CTA)
		if p.Hook == "" || p.Body == "" || p.CTA == "" {
			return "", nil, fmt.Errorf("post %d (%s): hook, body and cta are required", i+1, platform)
		}
		if seen[platform] {
			continue
		}
		seen[platform] = true
		p.Assets = cleanList(p.Assets)
		posts = append(posts, p)
	}
	return summary, posts, nil
}

func validateConcepts(concepts []trend.PosterConcept) ([]trend.PosterConcept, error) {
	if len(concepts) == 0 {
		return nil, errors.New("no poster concepts")
	}
	out := make([]trend.PosterConcept, 0, len(concepts))
	for i, c := range concepts {
		c.Title = strings.TrimSpace(c.Title)
		c.Mood = strings.TrimSpace(c.Mood)
		c.Layout = strings.TrimSpace(c.Layout)
		c.CallToAction = strings.TrimSpace(c.CallToAction)
		if c.Title == "" || c.Mood == "" || c.Layout == "" || c.CallToAction == "" {
			return nil, fmt.Errorf("poster %d: title, mood, layout and callToAction are required", i+1)
		}
		if len(c.Palette) == 0 {
			return nil, fmt.Errorf("poster %d: palette is empty", i+1)
		}
		palette := make([]string, len(c.Palette))
		for j, color := range c.Palette {
			color = strings.TrimSpace(color)
			if !hexColorRe.MatchString(color) {
				return nil, fmt.Errorf("poster %d: invalid color %q", i+1, color)
			}
			palette[j] = strings.ToUpper(color)
		}
		c.Palette = palette
		out = append(out, c)
	}
	return out, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
