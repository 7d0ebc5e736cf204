package lexical

import "github.com/hbollon/go-edlib"

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a symbol to
// count as a fuzzy match, matching the teacher FuzzyMatcher's default.
const fuzzyThreshold = 0.80

// fuzzyScore returns the Jaro-Winkler similarity of a and b in [0, 1].
// Grounded on the teacher's FuzzyMatcher.jaroWinkler, which treats a
// go-edlib error as "no similarity" rather than propagating it: the
// library only errors on a degenerate empty input, never a condition this
// package's callers can't already rule out cheaply.
func fuzzyScore(a, b string) float64 {
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score)
}
