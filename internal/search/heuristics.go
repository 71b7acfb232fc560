package search

import (
	"strings"
	"time"
)

// levelTokens is checked in order; WARNING precedes WARN so the longer
// token wins when both would match at the same offset.
var levelTokens = []string{"TRACE", "DEBUG", "INFO", "WARNING", "WARN", "ERROR", "FATAL", "PANIC"}

// ParseLevel extracts a log level token from a line, best-effort. The
// token must stand alone (no letter on either side) so "ERRORS" or
// "information" do not register. Returns the canonical upper-case token
// ("WARNING" normalised to "WARN"), or "" when none is found.
func ParseLevel(line string) string {
	upper := strings.ToUpper(line)
	bestPos := -1
	best := ""
	for _, tok := range levelTokens {
		pos := indexStandalone(upper, tok)
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos {
			bestPos = pos
			best = tok
		}
	}
	if best == "WARNING" {
		best = "WARN"
	}
	return best
}

func indexStandalone(upper, tok string) int {
	from := 0
	for {
		i := strings.Index(upper[from:], tok)
		if i < 0 {
			return -1
		}
		i += from
		before := i == 0 || !isLetter(upper[i-1])
		afterIdx := i + len(tok)
		after := afterIdx >= len(upper) || !isLetter(upper[afterIdx])
		if before && after {
			return i
		}
		from = i + 1
	}
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' }

// timestampLayouts are tried against a line's prefix, longest first.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"Jan _2 15:04:05",
}

// ParseTimestamp extracts a leading timestamp from a line, best-effort.
// Lines whose timestamp cannot be parsed are not excluded by time-range
// filters.
func ParseTimestamp(line string) (time.Time, bool) {
	trimmed := strings.TrimLeft(line, "[ \t")
	for _, layout := range timestampLayouts {
		n := len(layout)
		if len(trimmed) < n {
			continue
		}
		// RFC3339's numeric zone renders at the layout's length ("+07:00"
		// for "Z07:00"), but a literal 'Z' is five bytes shorter, so probe
		// both the layout length and five bytes less.
		for _, l := range []int{n, n - 5} {
			if l <= 0 || l > len(trimmed) {
				continue
			}
			if t, err := time.Parse(layout, trimmed[:l]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
