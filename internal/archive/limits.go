package archive

import (
	"io"

	cerr "github.com/standardbeagle/logscan/internal/errors"
)

// Guard enforces the bomb-detection limits across one
// extraction (including everything pulled in by recursion, since the
// caller shares one Guard down the recursion chain).
type Guard struct {
	limits Limits

	totalSize int64
	fileCount int
}

// NewGuard constructs a Guard for one top-level extraction.
func NewGuard(limits Limits) *Guard { return &Guard{limits: limits} }

// AdmitEntry checks the per-entry and aggregate limits before an entry is
// opened. size may be 0 if unknown ahead of time (the ratio check then
// happens lazily in RatioReader, or tarRatioReader for tar, instead).
func (g *Guard) AdmitEntry(size int64) error {
	if g.limits.MaxFileSize > 0 && size > g.limits.MaxFileSize {
		return cerr.New(cerr.CodeBombDetected, "archive.Guard", "entry exceeds max_file_size")
	}
	g.fileCount++
	if g.limits.MaxFileCount > 0 && g.fileCount > g.limits.MaxFileCount {
		return cerr.New(cerr.CodeBombDetected, "archive.Guard", "exceeds max_file_count")
	}
	g.totalSize += size
	if g.limits.MaxTotalSize > 0 && g.totalSize > g.limits.MaxTotalSize {
		return cerr.New(cerr.CodeBombDetected, "archive.Guard", "exceeds max_total_size")
	}
	return nil
}

// RatioReader wraps an entry's decompressing reader and aborts with
// BombDetected once the uncompressed:compressed ratio, evaluated lazily
// after every read, crosses MaxCompressionRatio. compressedSize is the
// entry's on-disk size; 0 disables the check (streams with unknown
// compressed size, e.g. bare tar headers, have no ratio to compute).
type RatioReader struct {
	r              io.Reader
	compressedSize int64
	maxRatio       float64
	read           int64
}

// NewRatioReader wraps r with lazy compression-ratio bomb detection.
func NewRatioReader(r io.Reader, compressedSize int64, maxRatio float64) *RatioReader {
	return &RatioReader{r: r, compressedSize: compressedSize, maxRatio: maxRatio}
}

func (rr *RatioReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if n > 0 {
		rr.read += int64(n)
		if rr.compressedSize > 0 && rr.maxRatio > 0 {
			ratio := float64(rr.read) / float64(rr.compressedSize)
			if ratio > rr.maxRatio {
				return n, cerr.New(cerr.CodeBombDetected, "archive.RatioReader", "compression ratio exceeded")
			}
		}
	}
	return n, err
}
