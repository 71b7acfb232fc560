// Package types holds identifiers and enums shared across the ingest and
// search subsystems so that no package needs to import another solely for
// a type definition.
package types

import "fmt"

// Hash is a lowercase hex-encoded SHA-256 digest identifying a blob.
type Hash string

// String implements fmt.Stringer.
func (h Hash) String() string { return string(h) }

// Valid reports whether h has the shape of a SHA-256 hex digest.
func (h Hash) Valid() bool {
	if len(h) != 64 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ShardPath splits the hash into the two-level directory layout used by
// the CAS: <first2hex>/<remaining62hex>.
func (h Hash) ShardPath() (dir, rest string) {
	if len(h) < 2 {
		return string(h), ""
	}
	return string(h[:2]), string(h[2:])
}

// FileID is the monotonic primary key assigned to a FileRecord on insert.
type FileID int64

// ArchiveID is the monotonic primary key assigned to an ArchiveRecord on insert.
type ArchiveID int64

// ArchiveType enumerates the container formats the extractor understands.
type ArchiveType string

const (
	ArchiveZip    ArchiveType = "zip"
	ArchiveTar    ArchiveType = "tar"
	ArchiveTarGz  ArchiveType = "tar.gz"
	ArchiveTarBz2 ArchiveType = "tar.bz2"
	ArchiveRar    ArchiveType = "rar"
	Archive7z     ArchiveType = "7z"
)

// ExtractionStatus enumerates the valid states of an ArchiveRecord.
type ExtractionStatus string

const (
	StatusPending    ExtractionStatus = "pending"
	StatusExtracting ExtractionStatus = "extracting"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
)

// ValidTransition reports whether moving from s to next is allowed by the
// state machine: pending -> extracting -> {completed, failed}.
func (s ExtractionStatus) ValidTransition(next ExtractionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusExtracting
	case StatusExtracting:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// FileRecord mirrors one row of the files table.
type FileRecord struct {
	ID              FileID
	Hash            Hash
	VirtualPath     string
	OriginalName    string
	SizeBytes       int64
	MTime           int64
	MimeType        string
	ParentArchiveID *ArchiveID
	DepthLevel      int
	CreatedAt       int64
}

// ArchiveRecord mirrors one row of the archives table.
type ArchiveRecord struct {
	ID               ArchiveID
	Hash             Hash
	VirtualPath      string
	OriginalName     string
	SizeBytes        int64
	MTime            int64
	ParentArchiveID  *ArchiveID
	DepthLevel       int
	ArchiveType      ArchiveType
	ExtractionStatus ExtractionStatus
	CreatedAt        int64
}

// ErrDepthInvariant is returned when a FileRecord violates
// depth_level == 0 <=> parent_archive_id == nil.
var ErrDepthInvariant = fmt.Errorf("types: depth_level and parent_archive_id disagree")

// CheckDepthInvariant validates the containment invariant.
func CheckDepthInvariant(depth int, parent *ArchiveID) error {
	if (depth == 0) != (parent == nil) {
		return ErrDepthInvariant
	}
	return nil
}
