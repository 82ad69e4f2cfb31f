// Package similarity matches user-typed filter text against movie titles.
// Both sides are folded to lowercase ASCII so "Amelie" finds "Amélie" and
// "Me & You" finds "Me and You".
package similarity

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// DefaultThreshold is the per-word score a fuzzy match needs.
const DefaultThreshold = 0.8

// Fold transliterates to ASCII, lowercases, turns "&" into "and" and keeps
// only letters, digits and single spaces.
func Fold(s string) string {
	s = unidecode.Unidecode(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '.', r == '-', r == '_', r == ':', r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// score rates two strings between 0 (unrelated) and 1 (equal after folding).
func score(a, b string) float64 {
	a, b = Fold(a), Fold(b)
	return ratio(a, b)
}

func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(distance(a, b))/float64(longest)
}

// Matches reports whether query filters title in. An empty query matches
// everything. A folded substring always matches; otherwise every query word
// must score at least threshold against some title word, which tolerates
// small typos.
func Matches(title, query string, threshold float64) bool {
	q := Fold(query)
	if q == "" {
		return true
	}
	t := Fold(title)
	if strings.Contains(t, q) {
		return true
	}

	titleWords := strings.Fields(t)
	for _, qw := range strings.Fields(q) {
		best := 0.0
		for _, tw := range titleWords {
			if strings.HasPrefix(tw, qw) {
				best = 1
				break
			}
			if r := ratio(qw, tw); r > best {
				best = r
			}
		}
		if best < threshold {
			return false
		}
	}
	return true
}

// distance is the Levenshtein edit distance over runes, using two rolling rows.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
