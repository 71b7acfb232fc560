package archive

import (
	"bufio"
	"io"

	"github.com/standardbeagle/logscan/internal/config"
	"github.com/standardbeagle/logscan/internal/types"
)

// sniffWindow is how many leading bytes Detect gets to look at. Large
// enough to cover the bare-tar "ustar" magic at offset 257, which is the
// deepest signature any format in detect.go inspects.
const sniffWindow = 512

// Open detects r's archive format from name and leading bytes and returns
// an Extractor ready to enumerate entries, plus the type that was
// detected. name may be empty if only magic-byte detection is available.
//
// ZIP needs random access to its central directory, so ra
// must be non-nil and size must be its length whenever the caller already
// knows the type is, or might be, ZIP; callers extracting a stream with
// unknown random-access support should buffer to a temp file first (the
// ingest pipeline does this via the CAS write-then-reopen it already
// performs for every entry, so no extra spooling is needed there).
func Open(r io.Reader, ra io.ReaderAt, size int64, name string, guard *Guard, limits config.Limits) (Extractor, types.ArchiveType, error) {
	br := bufio.NewReaderSize(r, sniffWindow)
	head, _ := br.Peek(sniffWindow)

	detected, ok := Detect(name, head)
	if !ok {
		return nil, "", errUnsupportedFormat(name)
	}

	switch detected.Type {
	case types.ArchiveZip:
		if ra == nil || size <= 0 {
			return nil, detected.Type, errUnsupportedFormat("zip: no random-access source available")
		}
		ext, err := OpenZip(ra, size, guard, limits.MaxCompressionRatio)
		return ext, detected.Type, err
	case types.ArchiveTar, types.ArchiveTarGz, types.ArchiveTarBz2:
		ext, err := NewTarExtractor(br, detected.Type, guard, limits.MaxCompressionRatio)
		return ext, detected.Type, err
	case types.ArchiveRar, types.Archive7z:
		// No decoder is wired for either format; detection still lets
		// the catalog record the archive type correctly instead of
		// misclassifying it, but opening it for extraction fails fast.
		return nil, detected.Type, errUnsupportedFormat(string(detected.Type))
	default:
		return nil, detected.Type, errUnsupportedFormat(name)
	}
}

// IsArchiveName reports whether name's extension alone looks like a
// supported (or at least recognized) archive container, without touching
// any bytes. Used by the ingest pipeline to decide whether a top-level
// source file should be routed through Open rather than stored directly.
func IsArchiveName(name string) bool {
	_, ok := DetectByName(name)
	return ok
}
