package dedupe

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TextSimilarity scores two strings from 0 (unrelated) to 100 (identical).
type TextSimilarity interface {
	Score(a, b string) float64
}

// TextSimilarityFunc adapts a function to TextSimilarity.
type TextSimilarityFunc func(a, b string) float64

// Score implements TextSimilarity.
func (f TextSimilarityFunc) Score(a, b string) float64 { return f(a, b) }

// indel weights a substitution as a delete plus an insert, so the distance
// counts only insertions and deletions.
var indel = levenshtein.NewParams().SubCost(2)

// TokenSortRatio compares strings independent of word order: both are
// case-folded, split on whitespace, sorted and re-joined, then scored by
// normalised insert/delete edit distance. An empty side scores 0.
type TokenSortRatio struct{}

// Score implements TextSimilarity.
func (TokenSortRatio) Score(a, b string) float64 {
	a, b = sortTokens(a), sortTokens(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	dist := levenshtein.Distance(a, b, indel)
	return 100 * (1 - float64(dist)/float64(total))
}

func sortTokens(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}
