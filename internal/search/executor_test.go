package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/ingest"
	"github.com/standardbeagle/logscan/internal/query"
	"github.com/standardbeagle/logscan/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// corpusWorkspace ingests the three-line corpus of the S3/S4 scenarios.
func corpusWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	return ingestFiles(t, map[string]string{
		"server.log": "ERROR: timeout occurred\nERROR: invalid input\ntimeout in cache\n",
	})
}

func ingestFiles(t *testing.T, files map[string]string) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Open("test", filepath.Join(t.TempDir(), "ws"))
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	srcDir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(srcDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	report, err := ingest.New(ws).Import(context.Background(), srcDir, nil)
	require.NoError(t, err)
	require.Empty(t, report.Failed)
	return ws
}

func andQuery(values ...string) query.Query {
	q := query.Query{GlobalOperator: query.OpAnd}
	for _, v := range values {
		q.Terms = append(q.Terms, query.Term{ID: v, Value: v, Operator: query.OpAnd, Enabled: true})
	}
	return q
}

func statFor(t *testing.T, stats []KeywordStat, keyword string) KeywordStat {
	t.Helper()
	for _, s := range stats {
		if s.Keyword == keyword {
			return s
		}
	}
	t.Fatalf("no stat for keyword %q in %+v", keyword, stats)
	return KeywordStat{}
}

func TestSearchAndSemantics(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	res, err := exec.Execute(context.Background(), andQuery("error", "timeout"), 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Contains(t, res.Entries[0].Content, "ERROR: timeout occurred")
	require.Equal(t, 1, res.Summary.TotalMatches)

	errStat := statFor(t, res.Summary.KeywordStats, "error")
	require.Equal(t, 1, errStat.MatchCount)
	require.InDelta(t, 100.0, errStat.MatchPercentage, 0.001)
	toStat := statFor(t, res.Summary.KeywordStats, "timeout")
	require.Equal(t, 1, toStat.MatchCount)
	require.InDelta(t, 100.0, toStat.MatchPercentage, 0.001)
}

func TestSearchOrSemantics(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	q := andQuery("error", "timeout")
	q.GlobalOperator = query.OpOr
	res, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	require.Equal(t, 3, res.Summary.TotalMatches)
	require.Equal(t, 2, statFor(t, res.Summary.KeywordStats, "error").MatchCount)
	require.Equal(t, 2, statFor(t, res.Summary.KeywordStats, "timeout").MatchCount)
}

func TestSearchNotTerm(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	q := andQuery("error")
	q.Terms = append(q.Terms, query.Term{ID: "n1", Value: "timeout", Operator: query.OpNot, Enabled: true})
	res, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Contains(t, res.Entries[0].Content, "ERROR: invalid input")
}

func TestSearchStatisticsSumLaw(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	q := andQuery("error", "timeout", "cache")
	q.GlobalOperator = query.OpOr
	res, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)

	for _, stat := range res.Summary.KeywordStats {
		count := 0
		for _, en := range res.Entries {
			for _, k := range en.MatchedKeywords {
				if k == stat.Keyword {
					count++
					break
				}
			}
		}
		require.Equal(t, count, stat.MatchCount, "keyword %s", stat.Keyword)
		want := 0.0
		if res.Summary.TotalMatches > 0 {
			want = 100 * float64(count) / float64(res.Summary.TotalMatches)
		}
		require.InDelta(t, want, stat.MatchPercentage, 0.001)
	}
}

func TestSearchDeterminism(t *testing.T) {
	ws := ingestFiles(t, map[string]string{
		"a.log": "error one\nerror two\n",
		"b.log": "error three\n",
		"c.log": "clean\n",
	})
	exec := New(ws)

	q := andQuery("error")
	first, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)

	first.Summary.SearchDurationMS = 0
	second.Summary.SearchDurationMS = 0
	require.Equal(t, first, second)

	// Ordered by (virtual_path, line_number) regardless of worker order.
	require.Equal(t, "a.log", first.Entries[0].VirtualPath)
	require.Equal(t, 1, first.Entries[0].LineNumber)
	require.Equal(t, "a.log", first.Entries[1].VirtualPath)
	require.Equal(t, 2, first.Entries[1].LineNumber)
	require.Equal(t, "b.log", first.Entries[2].VirtualPath)
}

func TestSearchTruncation(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	q := andQuery("error", "timeout")
	q.GlobalOperator = query.OpOr
	res, err := exec.Execute(context.Background(), q, 2)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.True(t, res.Summary.Truncated)
}

func TestSearchInvalidQuery(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	_, err := exec.Execute(context.Background(), query.Query{GlobalOperator: query.OpAnd}, 0)
	require.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestSearchLevelFilter(t *testing.T) {
	ws := ingestFiles(t, map[string]string{
		"app.log": "ERROR: disk failing\nINFO: disk checked\nWARN: disk slow\n",
	})
	exec := New(ws)

	q := andQuery("disk")
	q.Filters = &query.Filters{Levels: []string{"error"}}
	res, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "ERROR", res.Entries[0].Level)
}

func TestSearchFilePatternFilter(t *testing.T) {
	ws := ingestFiles(t, map[string]string{
		"svc/app.log": "error here\n",
		"other.txt":   "error there\n",
	})
	exec := New(ws)

	q := andQuery("error")
	q.Filters = &query.Filters{FilePattern: "**/*.log"}
	res, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "svc/app.log", res.Entries[0].VirtualPath)
}

func TestSearchRegexTerm(t *testing.T) {
	ws := ingestFiles(t, map[string]string{
		"app.log": "request took 250ms\nrequest took forever\n",
	})
	exec := New(ws)

	q := query.Query{
		Terms:          []query.Term{{ID: "r1", Value: `\d+ms`, Operator: query.OpAnd, Enabled: true, IsRegex: true}},
		GlobalOperator: query.OpAnd,
	}
	res, err := exec.Execute(context.Background(), q, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, 1, res.Entries[0].LineNumber)
}

func TestSearchSummaryNotification(t *testing.T) {
	ws := corpusWorkspace(t)
	exec := New(ws)

	var got *Summary
	exec.Notify = func(s Summary) { got = &s }

	_, err := exec.Execute(context.Background(), andQuery("error"), 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 2, got.TotalMatches)
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"2024-01-01 ERROR something broke", "ERROR"},
		{"[warn] slow response", "WARN"},
		{"WARNING: low disk", "WARN"},
		{"info: started", "INFO"},
		{"ERRORS counted: 4", ""},
		{"plain line", ""},
	}
	for _, c := range cases {
		if got := ParseLevel(c.line); got != c.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", c.line, got, c.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := ParseTimestamp("2024-03-01T10:30:00Z request served")
	if !ok || ts.Year() != 2024 {
		t.Fatalf("RFC3339 prefix should parse, got (%v, %v)", ts, ok)
	}
	ts, ok = ParseTimestamp("2024-03-01 10:30:00 request served")
	if !ok || ts.Hour() != 10 {
		t.Fatalf("space-separated timestamp should parse, got (%v, %v)", ts, ok)
	}
	if _, ok := ParseTimestamp("no timestamp here"); ok {
		t.Fatal("expected no timestamp")
	}
}

func TestLineScannerTruncatesLongLines(t *testing.T) {
	long := make([]byte, maxLineBytes+100)
	for i := range long {
		long[i] = 'x'
	}
	input := string(long) + "\nshort\n"

	sc := newLineScanner(strings.NewReader(input))
	line, truncated, err := sc.next()
	require.NoError(t, err)
	require.True(t, truncated)
	require.Len(t, line, maxLineBytes)

	line, truncated, err = sc.next()
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "short", line)
}
