// Package search runs compiled query plans over a workspace:
// validate and plan a query, select candidate files, fan the line scan
// out across a bounded worker pool, and aggregate matches
// deterministically by (virtual_path, line_number).
package search

import (
	"context"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/logscan/internal/debug"
	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/query"
	"github.com/standardbeagle/logscan/internal/types"
	"github.com/standardbeagle/logscan/internal/workspace"
)

// cancelCheckBytes is the cancellation cadence: the context is
// consulted before each blob and, between lines, whenever at least this
// many bytes have been scanned since the last check. A single line
// longer than this is read to its end before the next check.
const cancelCheckBytes = 8 * 1024

// LogEntry is one matched line.
type LogEntry struct {
	VirtualPath     string   `json:"virtual_path"`
	LineNumber      int      `json:"line_number"`
	Content         string   `json:"content"`
	MatchedKeywords []string `json:"matched_keywords"`
	Level           string   `json:"level,omitempty"`
	Timestamp       string   `json:"timestamp,omitempty"`
}

// KeywordStat counts one keyword's contribution to the result set.
type KeywordStat struct {
	Keyword         string  `json:"keyword"`
	MatchCount      int     `json:"match_count"`
	MatchPercentage float64 `json:"match_percentage"`
}

// Summary aggregates one search.
type Summary struct {
	TotalMatches     int           `json:"total_matches"`
	KeywordStats     []KeywordStat `json:"keyword_stats"`
	SearchDurationMS int64         `json:"search_duration_ms"`
	Truncated        bool          `json:"truncated"`
}

// Results is the search_logs response.
type Results struct {
	Entries []LogEntry `json:"entries"`
	Summary Summary    `json:"summary"`
}

// FileError records a per-file read failure; the query as a whole still
// returns.
type FileError struct {
	VirtualPath string `json:"virtual_path"`
	Reason      string `json:"reason"`
}

// Executor runs queries over one open workspace.
type Executor struct {
	ws *workspace.Workspace

	// Workers bounds the scan fan-out; 0 means GOMAXPROCS.
	Workers int
	// Notify, when set, receives the search-summary event after every
	// completed search.
	Notify func(Summary)

	mu         sync.Mutex
	fileErrors []FileError
}

// New constructs an Executor over ws.
func New(ws *workspace.Workspace) *Executor { return &Executor{ws: ws} }

// FileErrors returns the per-file failures of the most recent Execute.
func (e *Executor) FileErrors() []FileError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FileError(nil), e.fileErrors...)
}

// Execute runs q against the workspace, returning at most maxResults
// entries (0 means unlimited).
func (e *Executor) Execute(ctx context.Context, q query.Query, maxResults int) (*Results, error) {
	start := time.Now()

	if v := query.Validate(q); !v.IsValid {
		return nil, cerr.New(cerr.CodeInvalidQuery, "search.Execute", joinIssues(v.Issues))
	}

	files, err := e.ws.Catalog.ListAllFiles(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := query.Plan(q, len(files))
	if err != nil {
		return nil, err
	}

	candidates := e.selectCandidates(ctx, plan, files)
	debug.Printf("search: %d candidates of %d files, strategy=%s", len(candidates), len(files), plan.Strategy)

	e.mu.Lock()
	e.fileErrors = nil
	e.mu.Unlock()

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if plan.Strategy == query.StrategySequential {
		workers = 1
	}

	perFile := make([][]LogEntry, len(candidates))
	var matchCount int64
	var cmu sync.Mutex
	earlyStop := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range candidates {
		cmu.Lock()
		stop := maxResults > 0 && matchCount >= int64(maxResults)
		cmu.Unlock()
		if stop {
			// Already-running units finish; nothing new is scheduled.
			earlyStop = true
			break
		}
		i, rec := i, rec
		g.Go(func() error {
			entries, err := e.scanFile(gctx, plan, rec)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.recordFileError(rec.VirtualPath, err)
				return nil
			}
			perFile[i] = entries
			cmu.Lock()
			matchCount += int64(len(entries))
			cmu.Unlock()
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return nil, cerr.Wrap(cerr.CodeCancelled, "search.Execute", "", werr)
	}

	var entries []LogEntry
	for _, fe := range perFile {
		entries = append(entries, fe...)
	}
	// Workers finish in arbitrary order; results are ordered by
	// (virtual_path, line_number) regardless of scheduling.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].VirtualPath != entries[j].VirtualPath {
			return entries[i].VirtualPath < entries[j].VirtualPath
		}
		return entries[i].LineNumber < entries[j].LineNumber
	})

	truncated := earlyStop
	if maxResults > 0 && len(entries) > maxResults {
		entries = entries[:maxResults]
		truncated = true
	}

	res := &Results{
		Entries: entries,
		Summary: Summary{
			TotalMatches:     len(entries),
			KeywordStats:     keywordStats(plan, entries),
			SearchDurationMS: time.Since(start).Milliseconds(),
			Truncated:        truncated,
		},
	}
	if e.Notify != nil {
		e.Notify(res.Summary)
	}
	return res, nil
}

// selectCandidates narrows the workspace's files: under the mixed strategy the FTS path index prefilters by literal
// terms; a path miss falls back to the full file list so content-only
// matches are not hidden by their filenames. File-pattern and binary
// exclusion apply in all strategies.
func (e *Executor) selectCandidates(ctx context.Context, plan *query.ExecutionPlan, files []types.FileRecord) []types.FileRecord {
	if plan.Strategy == query.StrategyMixed {
		if narrowed, err := e.ws.Catalog.SearchByPath(ctx, ftsQueryFor(plan.LiteralTerms())); err == nil && len(narrowed) > 0 {
			files = narrowed
			sort.Slice(files, func(i, j int) bool { return files[i].VirtualPath < files[j].VirtualPath })
		}
	}

	var pattern string
	if plan.Filters != nil {
		pattern = plan.Filters.FilePattern
	}

	out := files[:0:0]
	for _, f := range files {
		if !searchableMIME(f.MimeType) {
			continue
		}
		if pattern != "" {
			if ok, err := doublestar.Match(pattern, f.VirtualPath); err != nil || !ok {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// scanFile scans one blob line by line, evaluating the plan on each.
func (e *Executor) scanFile(ctx context.Context, plan *query.ExecutionPlan, rec types.FileRecord) ([]LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := e.ws.CAS.Read(rec.Hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sc := newLineScanner(rc)
	var lastCheck int64
	var entries []LogEntry
	lineNo := 0

	for {
		if sc.consumed-lastCheck >= cancelCheckBytes {
			lastCheck = sc.consumed
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line, truncated, err := sc.next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, cerr.Wrap(cerr.CodeStorageError, "search.scanFile", rec.VirtualPath, err)
		}
		lineNo++

		matched := plan.MatchLine(line)
		include, keywords := combine(plan, matched)
		if !include {
			continue
		}

		level := ParseLevel(line)
		if plan.Filters != nil && len(plan.Filters.Levels) > 0 && !levelAllowed(level, plan.Filters.Levels) {
			continue
		}
		var tsText string
		if ts, ok := ParseTimestamp(line); ok {
			if plan.Filters != nil && plan.Filters.TimeRange != nil && !inRange(ts.Unix(), plan.Filters.TimeRange) {
				continue
			}
			tsText = ts.Format(time.RFC3339)
		}

		content := line
		if truncated {
			content += lineTruncationMarker
		}
		entries = append(entries, LogEntry{
			VirtualPath:     rec.VirtualPath,
			LineNumber:      lineNo,
			Content:         content,
			MatchedKeywords: keywords,
			Level:           level,
			Timestamp:       tsText,
		})
	}
}

// combine folds per-term matches into a line verdict via the global
// operator: AND requires every non-NOT term to
// match and every NOT term to be absent; OR requires any non-NOT term
// to match and every NOT term to be absent; a global NOT includes only
// lines where no term occurs at all.
func combine(plan *query.ExecutionPlan, matched []int) (bool, []string) {
	matchedSet := make(map[int]bool, len(matched))
	for _, i := range matched {
		matchedSet[i] = true
	}

	positiveTotal, positiveHit, notHit := 0, 0, false
	var keywords []string
	for i, t := range plan.Terms {
		if t.IsNot() {
			if matchedSet[i] {
				notHit = true
			}
			continue
		}
		positiveTotal++
		if matchedSet[i] {
			positiveHit++
			keywords = append(keywords, t.Value)
		}
	}

	switch plan.GlobalOperator {
	case query.OpAnd:
		return positiveHit == positiveTotal && !notHit, keywords
	case query.OpOr:
		return positiveHit > 0 && !notHit, keywords
	case query.OpNot:
		return len(matched) == 0, nil
	default:
		return positiveHit == positiveTotal && !notHit, keywords
	}
}

// keywordStats computes per-keyword counts over the final entry set, so
// counts and percentages always agree with the entries actually returned.
func keywordStats(plan *query.ExecutionPlan, entries []LogEntry) []KeywordStat {
	var stats []KeywordStat
	for _, t := range plan.Terms {
		if t.IsNot() {
			continue
		}
		count := 0
		for _, en := range entries {
			for _, k := range en.MatchedKeywords {
				if k == t.Value {
					count++
					break
				}
			}
		}
		pct := 0.0
		if len(entries) > 0 {
			pct = 100 * float64(count) / float64(len(entries))
		}
		stats = append(stats, KeywordStat{Keyword: t.Value, MatchCount: count, MatchPercentage: pct})
	}
	return stats
}

func (e *Executor) recordFileError(vpath string, err error) {
	e.mu.Lock()
	e.fileErrors = append(e.fileErrors, FileError{VirtualPath: vpath, Reason: err.Error()})
	e.mu.Unlock()
}

func levelAllowed(level string, allowed []string) bool {
	if level == "" {
		return false
	}
	for _, a := range allowed {
		canon := strings.ToUpper(a)
		if canon == "WARNING" {
			canon = "WARN"
		}
		if canon == level {
			return true
		}
	}
	return false
}

func inRange(unix int64, tr *query.TimeRange) bool {
	if tr.From != 0 && unix < tr.From {
		return false
	}
	if tr.To != 0 && unix > tr.To {
		return false
	}
	return true
}

// searchableMIME excludes binary blobs from line scanning; archives and other opaque formats are
// catalogued but never scanned as text.
func searchableMIME(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/xml", "":
		return true
	}
	return false
}

// ftsQueryFor quotes literal terms into an OR'ed FTS5 MATCH expression.
func ftsQueryFor(literals []string) string {
	parts := make([]string, 0, len(literals))
	for _, l := range literals {
		parts = append(parts, `"`+strings.ReplaceAll(l, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}

func joinIssues(issues []query.Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		if is.Severity == query.SeverityError {
			parts = append(parts, is.Code+": "+is.Message)
		}
	}
	return strings.Join(parts, "; ")
}
