package orchestrator

import (
	"strings"
	"unicode"
)

// defaultOverlapThreshold is the token-overlap ratio at which two
// statements count as the same point.
const defaultOverlapThreshold = 0.5

// Similarity decides whether two generated statements express the same
// point. Implementations must be symmetric and safe for concurrent use.
type Similarity interface {
	Similar(a, b string) bool
}

// tokenOverlapSimilarity matches statements on normalized containment or
// a token-overlap (Jaccard) threshold.
type tokenOverlapSimilarity struct {
	threshold float64
}

// DefaultSimilarity returns the similarity used by the pipeline when none
// is injected.
func DefaultSimilarity() Similarity {
	return NewTokenOverlapSimilarity(defaultOverlapThreshold)
}

// NewTokenOverlapSimilarity builds a similarity with the given overlap
// threshold, clamped to (0, 1].
func NewTokenOverlapSimilarity(threshold float64) Similarity {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultOverlapThreshold
	}
	return tokenOverlapSimilarity{threshold: threshold}
}

func (s tokenOverlapSimilarity) Similar(a, b string) bool {
	na, nb := normalizeStatement(a), normalizeStatement(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return tokenJaccard(na, nb) >= s.threshold
}

// normalizeStatement lowercases, replaces punctuation with spaces, and
// collapses whitespace so wording differences between engines do not
// defeat the match.
func normalizeStatement(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
