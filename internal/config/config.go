// Package config carries the tunables the core accepts at construction
// . Defaults are defined in Go; a .logscan.kdl
// document, if present, overrides them, and CLI flags (applied by the
// caller) win last.
package config

// Limits bounds the archive extractor.
type Limits struct {
	MaxExtractionDepth   int     // default 15
	MaxFileSize          int64   // bytes, per entry; default 10 GiB
	MaxTotalSize         int64   // bytes, sum of uncompressed sizes; 0 = unlimited
	MaxFileCount         int     // 0 = unlimited
	MaxCompressionRatio  float64 // default 100.0
	FullExtractionLimit  int64   // default 500 MiB
	StreamingSearchLimit int64   // bytes above which search falls back to a streaming blob scan
}

// DefaultLimits returns the extractor's default safety limits.
func DefaultLimits() Limits {
	const (
		gib = 1 << 30
		mib = 1 << 20
	)
	return Limits{
		MaxExtractionDepth:   15,
		MaxFileSize:          10 * gib,
		MaxTotalSize:         0,
		MaxFileCount:         0,
		MaxCompressionRatio:  100.0,
		FullExtractionLimit:  500 * mib,
		StreamingSearchLimit: 500 * mib,
	}
}

// FilterMode selects allow-list vs deny-list semantics for layer 2 of the
// ingest file filter.
type FilterMode string

const (
	FilterWhitelist FilterMode = "whitelist"
	FilterBlacklist FilterMode = "blacklist"
)

// FileFilter is the layer-2 configurable allow/deny policy. A filter that
// fails to parse degrades to "allow all".
type FileFilter struct {
	Mode                FilterMode
	FilenamePatterns    []string // doublestar globs matched against the basename
	AllowedExtensions   []string
	ForbiddenExtensions []string
}

// Valid reports whether f is well-formed enough to apply; an invalid
// filter should be replaced with AllowAll by the caller.
func (f FileFilter) Valid() bool {
	if f.Mode != FilterWhitelist && f.Mode != FilterBlacklist && f.Mode != "" {
		return false
	}
	return true
}

// AllowAll is the failure-safe fallback filter.
func AllowAll() FileFilter { return FileFilter{} }

// Performance bounds the concurrency of ingest and search.
type Performance struct {
	ParallelWorkers int // 0 = auto-detect (GOMAXPROCS)
	RegexCacheSize  int // default 1000
}

// Config is the top-level tunable set a Workspace is constructed with.
type Config struct {
	WorkspaceRoot string
	Limits        Limits
	Filter        FileFilter
	Performance   Performance
}

// Default returns a Config with every tunable at its default.
func Default(workspaceRoot string) Config {
	return Config{
		WorkspaceRoot: workspaceRoot,
		Limits:        DefaultLimits(),
		Filter:        AllowAll(),
		Performance: Performance{
			ParallelWorkers: 0,
			RegexCacheSize:  1000,
		},
	}
}
