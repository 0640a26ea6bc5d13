package cluster

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for but not all any are was were has have had its with your you our
		from into over about just like more most will can out get got make made one two
		here there they them their these those when where which who whom than then also
		very really some such only own same too each few both being been because while
		after before under again once should would could may might must did does doing
		his her she him this that what why how new best ways way top big little
		via per amp nbsp http https www com reddit comments post posts thoughts help
		need anyone think looking year years day days week weeks today now still
		first last next every much many thing things let lets use using used
	`) {
		stopwords[w] = struct{}{}
	}
}

// tokenize lowercases s, splits on anything that is not a letter or digit,
// and drops stopwords, numbers and tokens shorter than three runes. Plurals
// are folded so "chairs" and "chair" share a term.
func tokenize(s string) []string {
	tokens, _ := tokenizeSurface(s)
	return tokens
}

// tokenizeSurface is tokenize plus the lowercased word each token came from.
func tokenizeSurface(s string) (tokens, surfaces []string) {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens = make([]string, 0, len(fields))
	surfaces = make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 3 || isNumber(f) {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		folded := fold(f)
		if _, stop := stopwords[folded]; stop {
			continue
		}
		tokens = append(tokens, folded)
		surfaces = append(surfaces, f)
	}
	return tokens, surfaces
}

func fold(w string) string {
	if utf8.RuneCountInString(w) <= 4 {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ies"):
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "s"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
