package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logscan/internal/config"
	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/types"
)

func makeZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func makeTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := kgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: time.Unix(1700000000, 0),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func collectEntries(t *testing.T, ext Extractor) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for {
		entry, err := ext.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		if entry.IsDirectory {
			continue
		}
		rc, err := entry.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[entry.VirtualPath] = string(data)
	}
}

func TestDetectByName(t *testing.T) {
	cases := []struct {
		name string
		want types.ArchiveType
		ok   bool
	}{
		{"logs.zip", types.ArchiveZip, true},
		{"logs.tar", types.ArchiveTar, true},
		{"logs.tar.gz", types.ArchiveTarGz, true},
		{"logs.tgz", types.ArchiveTarGz, true},
		{"logs.tar.bz2", types.ArchiveTarBz2, true},
		{"logs.rar", types.ArchiveRar, true},
		{"logs.7z", types.Archive7z, true},
		{"server.log", "", false},
	}
	for _, c := range cases {
		got, ok := DetectByName(c.name)
		if ok != c.ok || got != c.want {
			t.Errorf("DetectByName(%q) = (%v, %v), want (%v, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestDetectMagicOverridesExtension(t *testing.T) {
	// A .tar name over zip magic: trust the bytes.
	data := makeZip(t, map[string]string{"a.txt": "x"})
	d, ok := Detect("mislabeled.tar", data)
	require.True(t, ok)
	require.Equal(t, types.ArchiveZip, d.Type)
	require.True(t, d.Sniffed)
}

func TestZipRoundTrip(t *testing.T) {
	data := makeZip(t, map[string]string{
		"hello.txt":      "hello world\n",
		"dir/server.log": "ERROR: timeout\n",
	})
	ext, err := OpenZip(bytes.NewReader(data), int64(len(data)), NewGuard(config.DefaultLimits()), 100)
	require.NoError(t, err)

	got := collectEntries(t, ext)
	require.Equal(t, map[string]string{
		"hello.txt":      "hello world\n",
		"dir/server.log": "ERROR: timeout\n",
	}, got)
}

func TestTarGzRoundTrip(t *testing.T) {
	data := makeTarGz(t, map[string]string{"log.txt": "nested content\n"})
	ext, err := NewTarExtractor(bytes.NewReader(data), types.ArchiveTarGz, NewGuard(config.DefaultLimits()), 100)
	require.NoError(t, err)

	got := collectEntries(t, ext)
	require.Equal(t, map[string]string{"log.txt": "nested content\n"}, got)
}

func TestOpenDetectsAndExtracts(t *testing.T) {
	data := makeZip(t, map[string]string{"a.txt": "abc"})
	ext, typ, err := Open(bytes.NewReader(data), bytes.NewReader(data), int64(len(data)), "a.zip", NewGuard(config.DefaultLimits()), config.DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, types.ArchiveZip, typ)
	require.Equal(t, map[string]string{"a.txt": "abc"}, collectEntries(t, ext))
}

func TestOpenRarFailsFast(t *testing.T) {
	head := append([]byte("Rar!\x1a\x07\x00"), bytes.Repeat([]byte{0}, 600)...)
	_, typ, err := Open(bytes.NewReader(head), bytes.NewReader(head), int64(len(head)), "x.rar", NewGuard(config.DefaultLimits()), config.DefaultLimits())
	require.Equal(t, types.ArchiveRar, typ)
	require.Equal(t, cerr.CodeUnsupportedFormat, cerr.CodeOf(err))
}

func TestCorruptZipHeader(t *testing.T) {
	junk := []byte("PK\x03\x04 this is not a zip file at all")
	_, err := OpenZip(bytes.NewReader(junk), int64(len(junk)), NewGuard(config.DefaultLimits()), 100)
	require.Equal(t, cerr.CodeCorruptArchive, cerr.CodeOf(err))
}

func TestGuardFileCountBomb(t *testing.T) {
	data := makeZip(t, map[string]string{"a.txt": "1", "b.txt": "2", "c.txt": "3"})
	limits := config.DefaultLimits()
	limits.MaxFileCount = 2
	ext, err := OpenZip(bytes.NewReader(data), int64(len(data)), NewGuard(limits), limits.MaxCompressionRatio)
	require.NoError(t, err)

	var lastErr error
	for {
		_, err := ext.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Equal(t, cerr.CodeBombDetected, cerr.CodeOf(lastErr))
}

func TestGuardTotalSizeBomb(t *testing.T) {
	big := string(bytes.Repeat([]byte("x"), 4096))
	data := makeZip(t, map[string]string{"a.txt": big, "b.txt": big})
	limits := config.DefaultLimits()
	limits.MaxTotalSize = 6000
	ext, err := OpenZip(bytes.NewReader(data), int64(len(data)), NewGuard(limits), limits.MaxCompressionRatio)
	require.NoError(t, err)

	var lastErr error
	for {
		_, err := ext.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Equal(t, cerr.CodeBombDetected, cerr.CodeOf(lastErr))
}

func TestTarCompressionRatioBomb(t *testing.T) {
	// A megabyte of zeros gzips to ~1 KiB; a ratio cap of 10 must trip
	// while streaming the entry body, not after.
	zeros := string(bytes.Repeat([]byte{0x30}, 1<<20))
	data := makeTarGz(t, map[string]string{"zeros.txt": zeros})
	ext, err := NewTarExtractor(bytes.NewReader(data), types.ArchiveTarGz, NewGuard(config.DefaultLimits()), 10)
	require.NoError(t, err)

	entry, err := ext.Next()
	require.NoError(t, err)
	rc, err := entry.Open()
	require.NoError(t, err)
	defer rc.Close()

	_, err = io.Copy(io.Discard, rc)
	require.Equal(t, cerr.CodeBombDetected, cerr.CodeOf(err))
}
