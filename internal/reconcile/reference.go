package reconcile

import (
	"strings"
	"unicode"
)

type ReferenceMode string

const (
	ReferenceExact      ReferenceMode = "exact"
	ReferenceSimilarity ReferenceMode = "similarity"
	ReferenceIgnore     ReferenceMode = "ignore"
)

// ReferencePolicy decides whether the reference on the SMS is compatible
// with the reference the payment expects. A missing value on either side is
// always compatible.
type ReferencePolicy interface {
	Compatible(expected, parsed *string) bool
}

func NewReferencePolicy(mode ReferenceMode, minSimilarity float64) ReferencePolicy {
	switch ReferenceMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case ReferenceIgnore:
		return ignorePolicy{}
	case ReferenceSimilarity:
		return similarityPolicy{min: minSimilarity}
	default:
		return exactPolicy{}
	}
}

type exactPolicy struct{}

func (exactPolicy) Compatible(expected, parsed *string) bool {
	e, p, ok := bothPresent(expected, parsed)
	if !ok {
		return true
	}
	return e == p
}

type similarityPolicy struct {
	min float64
}

func (s similarityPolicy) Compatible(expected, parsed *string) bool {
	e, p, ok := bothPresent(expected, parsed)
	if !ok {
		return true
	}
	return Similarity(e, p) >= s.min
}

type ignorePolicy struct{}

func (ignorePolicy) Compatible(*string, *string) bool { return true }

func bothPresent(expected, parsed *string) (string, string, bool) {
	if expected == nil || parsed == nil {
		return "", "", false
	}
	e, p := normalizeReference(*expected), normalizeReference(*parsed)
	if e == "" || p == "" {
		return "", "", false
	}
	return e, p, true
}

// normalizeReference uppercases and drops everything but letters and digits.
func normalizeReference(v string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(v)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)).
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
