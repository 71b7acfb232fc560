package archive

import (
	"archive/zip"
	"io"

	kflate "github.com/klauspost/compress/flate"

	cerr "github.com/standardbeagle/logscan/internal/errors"
)

// fastDeflate is klauspost/compress/flate's deflate decompressor, which is
// faster and allocates less per entry than the stdlib's. It is registered
// on each zip.Reader rather than in archive/zip's package-level registry,
// which already holds a Deflate entry and panics on a second registration.
func fastDeflate(r io.Reader) io.ReadCloser {
	return kflate.NewReader(r)
}

// ZipExtractor reads entries from a ZIP archive via its central directory,
// which lets the bomb guard inspect declared sizes before any entry is
// decompressed.
type ZipExtractor struct {
	zr    *zip.Reader
	guard *Guard
	ratio float64
	next  int
}

// OpenZip opens a ZIP archive from ra, which must support random access
// (zip's central directory is at the end of the file).
func OpenZip(ra io.ReaderAt, size int64, guard *Guard, maxRatio float64) (*ZipExtractor, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errCorrupt("zip central directory", err)
	}
	zr.RegisterDecompressor(zip.Deflate, fastDeflate)
	return &ZipExtractor{zr: zr, guard: guard, ratio: maxRatio}, nil
}

// Next implements Extractor.
func (z *ZipExtractor) Next() (*Entry, error) {
	if z.next >= len(z.zr.File) {
		return nil, io.EOF
	}
	f := z.zr.File[z.next]
	z.next++

	info := f.FileInfo()
	if info.IsDir() {
		return &Entry{VirtualPath: f.Name, IsDirectory: true, MTime: f.Modified.Unix()}, nil
	}
	if err := z.guard.AdmitEntry(int64(f.UncompressedSize64)); err != nil {
		return nil, err
	}
	return &Entry{
		VirtualPath: f.Name,
		Size:        int64(f.UncompressedSize64),
		MTime:       f.Modified.Unix(),
		Open: func() (io.ReadCloser, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, cerr.Wrap(cerr.CodeCorruptArchive, "archive.ZipExtractor", f.Name, err)
			}
			rr := NewRatioReader(rc, int64(f.CompressedSize64), z.ratio)
			return readCloserFunc{Reader: rr, closer: rc.Close}, nil
		},
	}, nil
}

type readCloserFunc struct {
	io.Reader
	closer func() error
}

func (r readCloserFunc) Close() error { return r.closer() }
