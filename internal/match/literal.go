// Package match implements the C5 matching primitives: literal
// multi-pattern search, edit-distance fuzzy matching, and phonetic
// matching, each usable standalone or combined by a query plan.
package match

import (
	"github.com/coregx/ahocorasick"
)

// LiteralMatcher finds every occurrence of a fixed set of literal terms
// in one haystack in a single pass, where a large literal alternation
// would otherwise need one regex scan per term.
type LiteralMatcher struct {
	automaton     *ahocorasick.Automaton
	patterns      []string
	caseSensitive bool
}

// LiteralHit is one occurrence of a pattern in a haystack.
type LiteralHit struct {
	Start, End int
	Pattern    string
}

// NewLiteralMatcher compiles patterns into one automaton. caseSensitive
// false builds the automaton over lowercased copies of patterns and
// matches against a lowercased haystack.
func NewLiteralMatcher(patterns []string, caseSensitive bool) (*LiteralMatcher, error) {
	built := make([]string, len(patterns))
	copy(built, patterns)
	if !caseSensitive {
		for i, p := range built {
			built[i] = toLowerASCII(p)
		}
	}

	automaton, err := ahocorasick.NewBuilder().
		SetMatchKind(ahocorasick.LeftmostFirst).
		AddStrings(built).
		Build()
	if err != nil {
		return nil, err
	}

	return &LiteralMatcher{automaton: automaton, patterns: patterns, caseSensitive: caseSensitive}, nil
}

// MatchesAny reports whether any pattern occurs anywhere in line.
func (m *LiteralMatcher) MatchesAny(line string) bool {
	haystack := line
	if !m.caseSensitive {
		haystack = toLowerASCII(line)
	}
	return m.automaton.IsMatch([]byte(haystack))
}

// MatchesAll reports whether every pattern occurs at least once in line.
func (m *LiteralMatcher) MatchesAll(line string) bool {
	haystack := line
	if !m.caseSensitive {
		haystack = toLowerASCII(line)
	}
	seen := make(map[string]bool, len(m.patterns))
	for _, hit := range m.automaton.FindAllOverlapping([]byte(haystack)) {
		seen[m.patterns[hit.PatternID]] = true
	}
	for _, p := range m.patterns {
		if !seen[p] {
			return false
		}
	}
	return true
}

// FindMatches returns every occurrence of every pattern in line, in
// left-to-right order, each one UTF-8 boundary validated so a match
// spanning into the middle of a multi-byte rune is discarded rather
// than surfaced as a corrupt substring.
func (m *LiteralMatcher) FindMatches(line string) []LiteralHit {
	haystack := line
	if !m.caseSensitive {
		haystack = toLowerASCII(line)
	}
	var hits []LiteralHit
	for _, hit := range m.automaton.FindAllOverlapping([]byte(haystack)) {
		start, end := hit.Start, hit.End
		if !validUTF8Boundary(line, start) || !validUTF8Boundary(line, end) {
			continue
		}
		hits = append(hits, LiteralHit{Start: start, End: end, Pattern: m.patterns[hit.PatternID]})
	}
	return hits
}

func validUTF8Boundary(s string, i int) bool {
	if i <= 0 || i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
