// Package archive turns archive files into lazy entry sequences,
// recursing into nested archives up to a configured depth and enforcing
// the bomb-detection limits along the way.
package archive

import (
	"io"

	"github.com/standardbeagle/logscan/internal/config"
	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/types"
)

// Entry is one logical member of an archive, lazily openable.
type Entry struct {
	VirtualPath string
	Size        int64 // declared/uncompressed size; 0 for streams with unknown length
	MTime       int64
	IsDirectory bool
	Open        func() (io.ReadCloser, error)
}

// DetectedType identifies an archive format from a filename and/or magic bytes.
type DetectedType struct {
	Type    types.ArchiveType
	Sniffed bool // true if identified by magic bytes rather than extension
}

// Extractor walks one archive's entries without reading any entry's
// contents until Entry.Open is called.
//
// Next returns io.EOF when the archive is exhausted. Any other error is
// fatal to the whole archive (a corrupt header, or a bomb limit tripping
// on a declared entry size); per-entry failures surface later, from the
// entry's own Open/Read. For sequential formats (tar) the returned
// entry's stream is only valid until the next call to Next, exactly like
// archive/tar's Reader.
type Extractor interface {
	Next() (*Entry, error)
}

// Limits is re-exported for callers that only need the archive package.
type Limits = config.Limits

var (
	errUnsupportedFormat = func(ctx string) error { return cerr.New(cerr.CodeUnsupportedFormat, "archive.Open", ctx) }
	errCorrupt           = func(ctx string, err error) error { return cerr.Wrap(cerr.CodeCorruptArchive, "archive.Open", ctx, err) }
	bombDetected         = func(ctx string) error { return cerr.New(cerr.CodeBombDetected, "archive.Open", ctx) }
)
