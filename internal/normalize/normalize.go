// Package normalize merges near-duplicate items across sources and gives every
// surviving item a stable identifier.
package normalize

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

// Normalize collapses items that share a canonical URL, keeping the variant
// with the most complete fields. Ties go to the earliest PublishedAt, then to
// the source with the lowest priority value, then to a lexical comparison,
// so the surviving set does not depend on input order.
//
// Output is ordered by PublishedAt descending; items without a timestamp
// follow in the relative order their URL was first seen. Items without a
// usable URL are dropped.
func Normalize(items []trend.SupportingContentItem, priority map[string]int) []trend.SupportingContentItem {
	best := make(map[string]trend.SupportingContentItem, len(items))
	order := make([]string, 0, len(items))

	for _, raw := range items {
		canonical := CanonicalURL(raw.URL)
		if canonical == "" {
			continue
		}
		key := dedupKey(canonical)
		item := clean(raw, canonical, key)

		cur, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = item
			continue
		}
		if better(item, cur, priority) {
			best[key] = item
		}
	}

	out := make([]trend.SupportingContentItem, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PublishedAt, out[j].PublishedAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		default:
			return false
		}
	})
	return out
}

// ItemID is the stable identifier for a canonical URL. The http and https
// forms of a URL share an ID.
func ItemID(canonical string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(dedupKey(canonical))).String()
}

// dedupKey folds http into https so both forms of an article collide.
func dedupKey(canonical string) string {
	if rest, ok := strings.CutPrefix(canonical, "http://"); ok {
		return "https://" + rest
	}
	return canonical
}

func clean(item trend.SupportingContentItem, canonical, key string) trend.SupportingContentItem {
	out := trend.SupportingContentItem{
		ID:      ItemID(key),
		Source:  strings.TrimSpace(item.Source),
		URL:     canonical,
		Title:   collapseSpace(item.Title),
		Excerpt: collapseSpace(item.Excerpt),
	}
	if item.PublishedAt != nil && !item.PublishedAt.IsZero() {
		ts := item.PublishedAt.UTC()
		out.PublishedAt = &ts
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func completeness(item trend.SupportingContentItem) int {
	n := 0
	if item.Title != "" {
		n++
	}
	if item.Excerpt != "" {
		n++
	}
	if item.PublishedAt != nil {
		n++
	}
	return n
}

// better reports whether a should replace b as the representative of a group.
func better(a, b trend.SupportingContentItem, priority map[string]int) bool {
	if ca, cb := completeness(a), completeness(b); ca != cb {
		return ca > cb
	}

	switch {
	case a.PublishedAt != nil && b.PublishedAt != nil:
		if !a.PublishedAt.Equal(*b.PublishedAt) {
			return a.PublishedAt.Before(*b.PublishedAt)
		}
	case a.PublishedAt != nil:
		return true
	case b.PublishedAt != nil:
		return false
	}

	if pa, pb := rank(a.Source, priority), rank(b.Source, priority); pa != pb {
		return pa < pb
	}

	if a.Source != b.Source {
		return a.Source < b.Source
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.Excerpt < b.Excerpt
}

// rank returns the configured priority of a source; unknown sources sort last.
func rank(source string, priority map[string]int) int {
	if p, ok := priority[source]; ok {
		return p
	}
	return int(^uint(0) >> 1)
}
