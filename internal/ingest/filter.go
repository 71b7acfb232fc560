package ingest

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/logscan/internal/config"
)

// sniffSize is how much of an entry's head the binary guard inspects.
const sniffSize = 8 * 1024

// BinaryGuard is layer 1 of the file-filter policy: always on, refuses to
// index entries whose first 8 KiB contains a NUL byte unless their
// declared MIME is known text.
func BinaryGuard(head []byte, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") || mimeType == "application/json" || mimeType == "application/xml" {
		return true
	}
	return looksLikeText(head)
}

// AllowEntry applies both filter layers to one candidate file name. A
// malformed filter config has already been normalized to config.AllowAll
// by config.LoadKDL, so this function never needs to detect invalidity
// itself.
func AllowEntry(f config.FileFilter, name string) bool {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))

	matchesPattern := false
	for _, pat := range f.FilenamePatterns {
		if ok, _ := doublestar.Match(pat, base); ok {
			matchesPattern = true
			break
		}
	}
	matchesAllowedExt := len(f.AllowedExtensions) == 0
	for _, e := range f.AllowedExtensions {
		if strings.EqualFold(e, ext) {
			matchesAllowedExt = true
			break
		}
	}
	matchesForbiddenExt := false
	for _, e := range f.ForbiddenExtensions {
		if strings.EqualFold(e, ext) {
			matchesForbiddenExt = true
			break
		}
	}

	switch f.Mode {
	case config.FilterBlacklist:
		if matchesForbiddenExt {
			return false
		}
		if len(f.FilenamePatterns) > 0 && matchesPattern {
			return false
		}
		return true
	case config.FilterWhitelist:
		if len(f.FilenamePatterns) > 0 {
			return matchesPattern && matchesAllowedExt
		}
		return matchesAllowedExt
	default:
		// config.AllowAll() carries Mode == "".
		return true
	}
}
