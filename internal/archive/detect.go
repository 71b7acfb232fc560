package archive

import (
	"bytes"
	"strings"

	"github.com/standardbeagle/logscan/internal/types"
)

var extensionTypes = map[string]types.ArchiveType{
	".zip":     types.ArchiveZip,
	".tar":     types.ArchiveTar,
	".tar.gz":  types.ArchiveTarGz,
	".tgz":     types.ArchiveTarGz,
	".tar.bz2": types.ArchiveTarBz2,
	".tbz2":    types.ArchiveTarBz2,
	".rar":     types.ArchiveRar,
	".7z":      types.Archive7z,
}

var magicSignatures = []struct {
	magic []byte
	typ   types.ArchiveType
}{
	{[]byte("PK\x03\x04"), types.ArchiveZip},
	{[]byte("PK\x05\x06"), types.ArchiveZip}, // empty zip
	{[]byte{0x1f, 0x8b}, types.ArchiveTarGz},
	{[]byte("BZh"), types.ArchiveTarBz2},
	{[]byte("Rar!\x1a\x07"), types.ArchiveRar},
	{[]byte("7z\xbc\xaf\x27\x1c"), types.Archive7z},
}

// DetectByName maps a filename's extension to an ArchiveType, longest
// suffix first so ".tar.gz" is preferred over ".gz".
func DetectByName(name string) (types.ArchiveType, bool) {
	lower := strings.ToLower(name)
	// Check the two-part extensions before their shorter suffixes.
	for _, ext := range []string{".tar.gz", ".tar.bz2"} {
		if strings.HasSuffix(lower, ext) {
			return extensionTypes[ext], true
		}
	}
	for ext, t := range extensionTypes {
		if strings.HasSuffix(lower, ext) {
			return t, true
		}
	}
	return "", false
}

// DetectByMagic inspects the first bytes of a stream. Callers must
// rewind the stream afterwards if they need to read from the start.
func DetectByMagic(head []byte) (types.ArchiveType, bool) {
	for _, sig := range magicSignatures {
		if bytes.HasPrefix(head, sig.magic) {
			return sig.typ, true
		}
	}
	// Bare (non-gzipped) tar has no magic at offset 0; its checksum
	// field sits at offset 148-156 within the first 512-byte header
	// block and the ustar magic "ustar" sits at offset 257.
	if len(head) >= 263 && bytes.Equal(head[257:262], []byte("ustar")) {
		return types.ArchiveTar, true
	}
	return "", false
}

// Detect combines name and magic detection: type is detected by
// extension first, then by magic bytes on mismatch.
func Detect(name string, head []byte) (DetectedType, bool) {
	if t, ok := DetectByName(name); ok {
		if mt, ok := DetectByMagic(head); ok && mt != t {
			// extension and magic disagree; trust the bytes.
			return DetectedType{Type: mt, Sniffed: true}, true
		}
		return DetectedType{Type: t}, true
	}
	if t, ok := DetectByMagic(head); ok {
		return DetectedType{Type: t, Sniffed: true}, true
	}
	return DetectedType{}, false
}
