package contract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/ingest"
	"github.com/standardbeagle/logscan/internal/query"
)

func ingestProgress(processed, total int, current string) ingest.Progress {
	return ingest.Progress{
		WorkspaceID:        "w1",
		ProcessedFiles:     processed,
		TotalFilesEstimate: total,
		CurrentVirtualPath: current,
	}
}

func TestParseSearchQuery(t *testing.T) {
	payload, err := ParseSearchQuery([]byte(`{
		"terms": [
			{"id": "t1", "value": "error", "operator": "AND", "enabled": true},
			{"id": "t2", "value": "timeout", "operator": "AND", "enabled": true, "case_sensitive": true}
		],
		"global_operator": "AND",
		"filters": {"levels": ["error"], "file_pattern": "**/*.log"}
	}`))
	require.NoError(t, err)
	require.Len(t, payload.Terms, 2)
	require.Equal(t, "AND", payload.GlobalOperator)

	q := payload.ToQuery()
	require.Equal(t, query.OpAnd, q.GlobalOperator)
	require.True(t, q.Terms[1].CaseSensitive)
	require.NotNil(t, q.Filters)
	require.Equal(t, "**/*.log", q.Filters.FilePattern)
}

func TestParseSearchQueryRejectsMissingTerms(t *testing.T) {
	_, err := ParseSearchQuery([]byte(`{"global_operator": "AND"}`))
	require.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestParseSearchQueryRejectsBadOperator(t *testing.T) {
	_, err := ParseSearchQuery([]byte(`{"terms": [], "global_operator": "XOR"}`))
	require.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestParseSearchQueryRejectsMalformedJSON(t *testing.T) {
	_, err := ParseSearchQuery([]byte(`{"terms": `))
	require.Equal(t, errors.CodeInvalidQuery, errors.CodeOf(err))
}

func TestFromIngestProgressPercentage(t *testing.T) {
	ev := FromIngestProgress(ingestProgress(5, 10, "a.zip/x.log"))
	require.InDelta(t, 50.0, ev.Progress, 0.001)
	require.Equal(t, "a.zip/x.log", ev.CurrentFile)

	// Archive expansion can push processed past the source estimate;
	// the event clamps at 100.
	ev = FromIngestProgress(ingestProgress(25, 10, "a.zip/y.log"))
	require.InDelta(t, 100.0, ev.Progress, 0.001)
}
