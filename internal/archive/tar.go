package archive

import (
	"archive/tar"
	"compress/bzip2"
	"io"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/standardbeagle/logscan/internal/types"
)

// TarExtractor streams entries from a tar stream, optionally wrapped in
// gzip or bzip2 decompression. Unlike ZipExtractor it cannot inspect a
// central directory up front, so bomb detection here is purely per-entry
// plus the lazy compression-ratio reader; there is no whole-archive
// pre-check.
//
// Like archive/tar itself, the entry returned by Next wraps the shared
// underlying reader: its stream is valid only until the next call to
// Next. Callers must finish reading one entry before advancing.
type TarExtractor struct {
	tr    *tar.Reader
	guard *Guard
	ratio float64
	// counting tracks bytes consumed from the (possibly compressed)
	// underlying stream; uncompressedTotal tracks bytes handed to
	// callers across all entries. Their ratio is the same bomb signal
	// ZipExtractor gets per-entry from the central directory, just
	// computed cumulatively since TAR has no such directory to consult
	// up front.
	counting          *countingReader
	uncompressedTotal int64
}

// NewTarExtractor wraps r (raw for plain .tar, compressed for .tar.gz /
// .tar.bz2) as a tar entry stream.
func NewTarExtractor(r io.Reader, typ types.ArchiveType, guard *Guard, maxRatio float64) (*TarExtractor, error) {
	cr := &countingReader{r: r}
	var payload io.Reader = cr

	switch typ {
	case types.ArchiveTarGz:
		gz, err := kgzip.NewReader(cr)
		if err != nil {
			return nil, errCorrupt("gzip header", err)
		}
		payload = gz
	case types.ArchiveTarBz2:
		payload = bzip2.NewReader(cr)
	case types.ArchiveTar:
		// payload already set to cr
	default:
		return nil, errUnsupportedFormat(string(typ))
	}

	return &TarExtractor{tr: tar.NewReader(payload), guard: guard, ratio: maxRatio, counting: cr}, nil
}

// Next implements Extractor. Non-regular, non-directory members
// (symlinks, devices) are skipped.
func (t *TarExtractor) Next() (*Entry, error) {
	for {
		hdr, err := t.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, errCorrupt("tar header", err)
		}
		if hdr.Typeflag == tar.TypeDir {
			return &Entry{VirtualPath: hdr.Name, IsDirectory: true, MTime: hdr.ModTime.Unix()}, nil
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := t.guard.AdmitEntry(hdr.Size); err != nil {
			return nil, err
		}

		body := &tarRatioReader{inner: io.LimitReader(t.tr, hdr.Size), extractor: t}
		return &Entry{
			VirtualPath: hdr.Name,
			Size:        hdr.Size,
			MTime:       hdr.ModTime.Unix(),
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(body), nil
			},
		}, nil
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// tarRatioReader evaluates the cumulative uncompressed:compressed ratio
// across the whole archive after every read, aborting with BombDetected
// the moment it crosses the configured threshold.
type tarRatioReader struct {
	inner     io.Reader
	extractor *TarExtractor
}

func (l *tarRatioReader) Read(p []byte) (int, error) {
	n, err := l.inner.Read(p)
	if n > 0 {
		l.extractor.uncompressedTotal += int64(n)
		if l.extractor.ratio > 0 && l.extractor.counting.n > 0 {
			ratio := float64(l.extractor.uncompressedTotal) / float64(l.extractor.counting.n)
			if ratio > l.extractor.ratio {
				return n, bombRatioErr
			}
		}
	}
	return n, err
}

var bombRatioErr = bombDetected("tar compression ratio exceeded")
