package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL merges a .logscan.kdl document found under workspaceRoot into
// cfg. A missing file is not an error: defaults stand. A document that
// is not valid KDL is returned as an error and cfg is left unchanged.
// Within a parsed document, an invalid filter block degrades to
// AllowAll, and every other field simply keeps its prior value when its
// node's argument fails to parse.
func LoadKDL(cfg *Config, workspaceRoot string) error {
	path := workspaceRoot + "/.logscan.kdl"
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "limits":
			applyLimits(&cfg.Limits, n.Children)
		case "performance":
			applyPerformance(&cfg.Performance, n.Children)
		case "filter":
			applyFilter(&cfg.Filter, n.Children)
		}
	}
	return nil
}

func applyLimits(l *Limits, children []*document.Node) {
	for _, cn := range children {
		switch nodeName(cn) {
		case "max_extraction_depth":
			if v, ok := firstIntArg(cn); ok {
				l.MaxExtractionDepth = v
			}
		case "max_file_size":
			if v, ok := firstSizeArg(cn); ok {
				l.MaxFileSize = v
			}
		case "max_total_size":
			if v, ok := firstSizeArg(cn); ok {
				l.MaxTotalSize = v
			}
		case "max_file_count":
			if v, ok := firstIntArg(cn); ok {
				l.MaxFileCount = v
			}
		case "max_compression_ratio":
			if v, ok := firstFloatArg(cn); ok {
				l.MaxCompressionRatio = v
			}
		case "full_extraction_limit":
			if v, ok := firstSizeArg(cn); ok {
				l.FullExtractionLimit = v
			}
		case "streaming_search_limit":
			if v, ok := firstSizeArg(cn); ok {
				l.StreamingSearchLimit = v
			}
		}
	}
}

func applyPerformance(p *Performance, children []*document.Node) {
	for _, cn := range children {
		switch nodeName(cn) {
		case "parallel_workers":
			if v, ok := firstIntArg(cn); ok {
				p.ParallelWorkers = v
			}
		case "regex_cache_size":
			if v, ok := firstIntArg(cn); ok {
				p.RegexCacheSize = v
			}
		}
	}
}

// applyFilter parses the filter { } block. Any structural problem (an
// unrecognized mode value) leaves f at AllowAll rather than a
// half-populated filter: a malformed filter config degrades to allow-all.
func applyFilter(f *FileFilter, children []*document.Node) {
	parsed := FileFilter{}
	for _, cn := range children {
		switch nodeName(cn) {
		case "mode":
			if s, ok := firstStringArg(cn); ok {
				switch strings.ToLower(s) {
				case string(FilterWhitelist):
					parsed.Mode = FilterWhitelist
				case string(FilterBlacklist):
					parsed.Mode = FilterBlacklist
				default:
					*f = AllowAll()
					return
				}
			}
		case "filename_patterns":
			parsed.FilenamePatterns = firstStringArgs(cn)
		case "allowed_extensions":
			parsed.AllowedExtensions = firstStringArgs(cn)
		case "forbidden_extensions":
			parsed.ForbiddenExtensions = firstStringArgs(cn)
		}
	}
	if !parsed.Valid() {
		*f = AllowAll()
		return
	}
	*f = parsed
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstStringArgs(n *document.Node) []string {
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// firstSizeArg accepts either a bare integer (bytes) or a "10GB"-style
// string argument.
func firstSizeArg(n *document.Node) (int64, bool) {
	if v, ok := firstIntArg(n); ok {
		return int64(v), true
	}
	if s, ok := firstStringArg(n); ok {
		if sz, err := parseSize(s); err == nil {
			return sz, true
		}
	}
	return 0, false
}

func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	var multiplier int64 = 1
	var numStr string
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}
	n, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}
