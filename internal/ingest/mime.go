package ingest

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
)

// extMimeTypes covers the known text and compressed formats plus the archive
// types this module understands, so a nested archive entry that is
// itself an archive still gets a meaningful mime_type even though it is
// stored as an opaque blob once max_extraction_depth is reached.
var extMimeTypes = map[string]string{
	".gz":      "application/gzip",
	".tar":     "application/x-tar",
	".tgz":     "application/gzip",
	".tar.gz":  "application/gzip",
	".bz2":     "application/x-bzip2",
	".tar.bz2": "application/x-bzip2",
	".zip":     "application/zip",
	".rar":     "application/vnd.rar",
	".7z":      "application/x-7z-compressed",
	".log":     "text/plain",
	".txt":     "text/plain",
	".json":    "application/json",
	".xml":     "application/xml",
	".csv":     "text/csv",
	".md":      "text/markdown",
}

// DetectMIME determines a mime_type for an entry from its name and the
// first bytes of its content: extension first, then a text-vs-binary sniff.
func DetectMIME(name string, head []byte) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tar.bz2"} {
		if strings.HasSuffix(lower, ext) {
			return extMimeTypes[ext]
		}
	}
	if mt, ok := extMimeTypes[strings.ToLower(filepath.Ext(lower))]; ok {
		return mt
	}
	if looksLikeText(head) {
		return "text/plain"
	}
	return http.DetectContentType(head)
}

// looksLikeText is the same NUL-byte heuristic the binary guard (filter.go)
// uses, exposed here so MIME detection and the guard agree on what "text"
// means.
func looksLikeText(head []byte) bool {
	return !bytes.ContainsRune(head, 0)
}
