// Package cluster groups normalized items into named themes by keyword
// similarity. The algorithm has no randomness: a fixed input set and
// threshold always produce the same themes and assignments.
package cluster

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/chyiyaqing/trendbot/internal/trend"
)

const (
	titleWeight   = 2
	excerptWeight = 1
)

type Options struct {
	// Threshold is the minimum cosine similarity that links two items.
	Threshold float64
	// MinMembers drops clusters with fewer items.
	MinMembers int
	// MaxKeywords caps the keyword list of each cluster.
	MaxKeywords int
}

// Cluster is one theme candidate: a unique name, its matched items and the
// keywords ordered by relevance.
type Cluster struct {
	Name     string
	Keywords []string
	Items    []trend.SupportingContentItem
}

type Clusterer struct {
	opts Options
}

func New(opts Options) *Clusterer {
	if opts.MinMembers < 1 {
		opts.MinMembers = 1
	}
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = 8
	}
	return &Clusterer{opts: opts}
}

// signature is the term-frequency profile of one item.
type signature struct {
	terms map[string]int
	title []string
	// surface holds the unfolded word behind each title token.
	surface []string
	norm    float64
	index   int
	sortBy  string
}

// Cluster links every pair of items whose similarity reaches the threshold
// and returns the connected components that have at least MinMembers items,
// largest first. Items in no qualifying component are discarded.
func (c *Clusterer) Cluster(items []trend.SupportingContentItem) []Cluster {
	sigs := make([]signature, 0, len(items))
	for i, item := range items {
		sig := newSignature(item, i)
		if sig.norm == 0 {
			continue
		}
		sigs = append(sigs, sig)
	}
	// Pair order must not depend on input order.
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].sortBy < sigs[j].sortBy })

	uf := newUnionFind(len(sigs))
	for i := 0; i < len(sigs); i++ {
		for j := i + 1; j < len(sigs); j++ {
			if cosine(sigs[i], sigs[j]) >= c.opts.Threshold {
				uf.union(i, j)
			}
		}
	}

	components := make(map[int][]int)
	var roots []int
	for i := range sigs {
		r := uf.find(i)
		if _, ok := components[r]; !ok {
			roots = append(roots, r)
		}
		components[r] = append(components[r], i)
	}

	var groups [][]int
	for _, r := range roots {
		if members := components[r]; len(members) >= c.opts.MinMembers {
			groups = append(groups, members)
		}
	}
	// Members are in sortBy order, so groups[k][0] is a stable tie-breaker.
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return sigs[groups[i][0]].sortBy < sigs[groups[j][0]].sortBy
	})

	used := make(map[string]bool, len(groups))
	clusters := make([]Cluster, 0, len(groups))
	for _, members := range groups {
		memberSigs := make([]signature, len(members))
		for k, m := range members {
			memberSigs[k] = sigs[m]
		}
		keywords := rankKeywords(memberSigs)
		name := uniqueName(baseName(memberSigs, keywords), keywords, used)
		used[name] = true

		// Keep the caller's ordering inside a theme.
		sort.Slice(memberSigs, func(i, j int) bool { return memberSigs[i].index < memberSigs[j].index })
		matched := make([]trend.SupportingContentItem, len(memberSigs))
		for k, s := range memberSigs {
			matched[k] = items[s.index]
		}

		if len(keywords) > c.opts.MaxKeywords {
			keywords = keywords[:c.opts.MaxKeywords]
		}
		clusters = append(clusters, Cluster{Name: name, Keywords: keywords, Items: matched})
	}
	return clusters
}

func newSignature(item trend.SupportingContentItem, index int) signature {
	title, surface := tokenizeSurface(item.Title)
	terms := make(map[string]int)
	for _, t := range title {
		terms[t] += titleWeight
	}
	for _, t := range tokenize(item.Excerpt) {
		terms[t] += excerptWeight
	}

	sum := 0
	for _, w := range terms {
		sum += w * w
	}
	key := item.ID
	if key == "" {
		key = item.URL + "\x00" + item.Title
	}
	return signature{
		terms:   terms,
		title:   title,
		surface: surface,
		norm:    math.Sqrt(float64(sum)),
		index:   index,
		sortBy:  key,
	}
}

// cosine works on integer weights, so the dot product is exact and the
// result is identical across runs.
func cosine(a, b signature) float64 {
	if len(a.terms) > len(b.terms) {
		a, b = b, a
	}
	dot := 0
	for t, wa := range a.terms {
		dot += wa * b.terms[t]
	}
	if dot == 0 {
		return 0
	}
	return float64(dot) / (a.norm * b.norm)
}

type termStat struct {
	term   string
	df     int
	weight int
}

// rankKeywords orders terms by how many members use them, then by total
// weight, then alphabetically.
func rankKeywords(members []signature) []string {
	stats := make(map[string]*termStat)
	for _, m := range members {
		for t, w := range m.terms {
			st, ok := stats[t]
			if !ok {
				st = &termStat{term: t}
				stats[t] = st
			}
			st.df++
			st.weight += w
		}
	}

	ranked := make([]*termStat, 0, len(stats))
	for _, st := range stats {
		ranked = append(ranked, st)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.df != b.df {
			return a.df > b.df
		}
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		return a.term < b.term
	})

	out := make([]string, len(ranked))
	for i, st := range ranked {
		out[i] = st.term
	}
	return out
}

// baseName prefers the adjacent title pair shared by at least half the
// members ("warm minimalism"), falling back to the top keyword. Pairs match
// on folded terms but the name uses the most common wording ("limewash
// walls").
func baseName(members []signature, keywords []string) string {
	counts := make(map[string]int)
	wordings := make(map[string]map[string]int)
	for _, m := range members {
		seen := make(map[string]bool)
		for i := 0; i+1 < len(m.title); i++ {
			if m.title[i] == m.title[i+1] {
				continue
			}
			pair := m.title[i] + " " + m.title[i+1]
			if wordings[pair] == nil {
				wordings[pair] = make(map[string]int)
			}
			wordings[pair][m.surface[i]+" "+m.surface[i+1]]++
			if !seen[pair] {
				seen[pair] = true
				counts[pair]++
			}
		}
	}

	best, bestCount := "", 0
	for pair, n := range counts {
		if n > bestCount || (n == bestCount && pair < best) {
			best, bestCount = pair, n
		}
	}
	minShare := (len(members) + 1) / 2
	if minShare < 2 && len(members) > 1 {
		minShare = 2
	}
	if best != "" && bestCount >= minShare {
		return mostCommon(wordings[best], best)
	}
	if len(keywords) > 0 {
		words := make(map[string]int)
		for _, m := range members {
			for i, t := range m.title {
				if t == keywords[0] {
					words[m.surface[i]]++
				}
			}
		}
		return mostCommon(words, keywords[0])
	}
	return "untitled"
}

// mostCommon returns the highest count key, lexically smallest on ties, or
// def when counts is empty.
func mostCommon(counts map[string]int, def string) string {
	best, bestCount := def, 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}

// uniqueName disambiguates a colliding name with the next keyword it does
// not already contain, then with a numeric suffix.
func uniqueName(name string, keywords []string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	inName := make(map[string]bool)
	for _, w := range strings.Fields(name) {
		inName[fold(w)] = true
	}
	for _, kw := range keywords {
		if inName[kw] {
			continue
		}
		if candidate := fmt.Sprintf("%s (%s)", name, kw); !used[candidate] {
			return candidate
		}
	}
	for n := 2; ; n++ {
		if candidate := fmt.Sprintf("%s #%d", name, n); !used[candidate] {
			return candidate
		}
	}
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union keeps the smaller index as root so component roots are stable.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
