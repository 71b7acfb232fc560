package match

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// MaxEditsForLength returns the edit-distance budget for a term of n
// runes.
func MaxEditsForLength(n int) int {
	switch {
	case n <= 4:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}

// FuzzyMatch reports whether candidate is within term's edit-distance
// budget.
func FuzzyMatch(term, candidate string) bool {
	if term == candidate {
		return true
	}
	budget := MaxEditsForLength(len([]rune(term)))
	distance := edlib.LevenshteinDistance(term, candidate)
	return distance <= budget
}

// FuzzyFindBest returns the candidate with the smallest edit distance to
// term, and whether it falls within term's budget.
func FuzzyFindBest(term string, candidates []string) (best string, withinBudget bool) {
	budget := MaxEditsForLength(len([]rune(term)))
	bestDistance := -1
	for _, c := range candidates {
		d := edlib.LevenshteinDistance(term, c)
		if bestDistance < 0 || d < bestDistance {
			bestDistance = d
			best = c
		}
	}
	return best, bestDistance >= 0 && bestDistance <= budget
}

// NormalizeWord lowercases and trims a token before either fuzzy or
// phonetic comparison, so "ERROR:" and "error" compare equal.
func NormalizeWord(s string) string {
	return strings.ToLower(strings.Trim(s, ".,:;!?()[]{}\"'"))
}
