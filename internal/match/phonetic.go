package match

import (
	"strings"
	"sync"
)

// phoneticCache memoizes Metaphone keys under a many-reader/one-writer
// lock. No go-edlib (or any other available dependency) ships a
// Metaphone implementation — Soundex is the closest and differs enough
// in algorithm that it would misclassify the very pairs Metaphone is
// meant to catch — so the encoder is implemented here directly.
var (
	phoneticMu    sync.RWMutex
	phoneticCache = make(map[string]string)
)

// Metaphone computes a simplified Metaphone key for s: primary English
// phonetic rules only (no alternate/secondary key), sufficient for
// matching log-message words that sound alike despite differing
// spelling.
func Metaphone(s string) string {
	phoneticMu.RLock()
	key, ok := phoneticCache[s]
	phoneticMu.RUnlock()
	if ok {
		return key
	}
	key = computeMetaphone(s)
	phoneticMu.Lock()
	phoneticCache[s] = key
	phoneticMu.Unlock()
	return key
}

// PhoneticMatch reports whether a and b share a Metaphone key.
func PhoneticMatch(a, b string) bool {
	return Metaphone(a) == Metaphone(b)
}

func computeMetaphone(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	letters := []byte(s)
	// Keep only letters; Metaphone has no notion of digits/punctuation.
	filtered := letters[:0]
	for _, c := range letters {
		if c >= 'A' && c <= 'Z' {
			filtered = append(filtered, c)
		}
	}
	letters = filtered
	n := len(letters)
	if n == 0 {
		return ""
	}

	isVowel := func(c byte) bool {
		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			return true
		}
		return false
	}

	var out strings.Builder
	i := 0

	// Initial-letter exceptions (classic Metaphone rules).
	switch {
	case n >= 2 && (letters[0] == 'A' && letters[1] == 'E'),
		n >= 2 && (letters[0] == 'G' && letters[1] == 'N'),
		n >= 2 && (letters[0] == 'K' && letters[1] == 'N'),
		n >= 2 && (letters[0] == 'P' && letters[1] == 'N'),
		n >= 2 && (letters[0] == 'W' && letters[1] == 'R'):
		i = 1
	case n >= 1 && letters[0] == 'X':
		out.WriteByte('S')
		i = 1
	case n >= 2 && letters[0] == 'W' && letters[1] == 'H':
		out.WriteByte('W')
		i = 2
	}

	var last byte
	for i < n && out.Len() < 64 {
		c := letters[i]
		if c == last && c != 'C' {
			i++
			continue
		}
		next := byte(0)
		if i+1 < n {
			next = letters[i+1]
		}
		prev := byte(0)
		if i > 0 {
			prev = letters[i-1]
		}

		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				out.WriteByte(c)
			}
		case 'B':
			if !(i == n-1 && prev == 'M') {
				out.WriteByte('B')
			}
		case 'C':
			switch {
			case next == 'I' && i+2 < n && letters[i+2] == 'A':
				out.WriteByte('X')
			case next == 'H':
				out.WriteByte('X')
				i++
			case next == 'I' || next == 'E' || next == 'Y':
				if prev != 'S' {
					out.WriteByte('S')
				}
			default:
				out.WriteByte('K')
			}
		case 'D':
			if next == 'G' && i+2 < n && (letters[i+2] == 'E' || letters[i+2] == 'Y' || letters[i+2] == 'I') {
				out.WriteByte('J')
				i += 2
			} else {
				out.WriteByte('T')
			}
		case 'G':
			switch {
			case next == 'H' && !(i+2 < n && isVowel(letters[i+2])):
				i++
			case next == 'N':
				// silent in -GN, -GNED
			case next == 'I' || next == 'E' || next == 'Y':
				out.WriteByte('J')
			default:
				out.WriteByte('K')
			}
		case 'H':
			if isVowel(prev) && !isVowel(next) {
				// silent between a vowel and a consonant
			} else if prev == 'C' || prev == 'S' || prev == 'P' || prev == 'T' || prev == 'G' {
				// already handled by the consonant digraph above
			} else {
				out.WriteByte('H')
			}
		case 'K':
			if prev != 'C' {
				out.WriteByte('K')
			}
		case 'P':
			if next == 'H' {
				out.WriteByte('F')
				i++
			} else {
				out.WriteByte('P')
			}
		case 'Q':
			out.WriteByte('K')
		case 'S':
			switch {
			case next == 'H':
				out.WriteByte('X')
				i++
			case next == 'I' && i+2 < n && (letters[i+2] == 'O' || letters[i+2] == 'A'):
				out.WriteByte('X')
			default:
				out.WriteByte('S')
			}
		case 'T':
			switch {
			case next == 'H':
				out.WriteByte('0')
				i++
			case next == 'I' && i+2 < n && (letters[i+2] == 'O' || letters[i+2] == 'A'):
				out.WriteByte('X')
			default:
				out.WriteByte('T')
			}
		case 'V':
			out.WriteByte('F')
		case 'W', 'Y':
			if isVowel(next) {
				out.WriteByte(c)
			}
		case 'X':
			out.WriteString("KS")
		case 'Z':
			out.WriteByte('S')
		case 'F', 'J', 'L', 'M', 'N', 'R':
			out.WriteByte(c)
		}

		last = c
		i++
	}

	return out.String()
}
