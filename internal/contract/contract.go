// Package contract defines the library-boundary payloads —
// request/response shapes and event payloads, all snake_case — plus
// JSON Schemas the host can validate raw input against before any of it
// reaches the core. Field naming here is the contract: total_matches,
// workspace_id, never camelCase.
package contract

import (
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	cerr "github.com/standardbeagle/logscan/internal/errors"
	"github.com/standardbeagle/logscan/internal/ingest"
	"github.com/standardbeagle/logscan/internal/query"
)

// SearchTermPayload is the wire form of one search term.
type SearchTermPayload struct {
	ID            string `json:"id"`
	Value         string `json:"value"`
	Operator      string `json:"operator"`
	Enabled       bool   `json:"enabled"`
	CaseSensitive bool   `json:"case_sensitive"`
	IsRegex       bool   `json:"is_regex"`
	Priority      int    `json:"priority"`
	Source        string `json:"source,omitempty"`
	PresetGroupID string `json:"preset_group_id,omitempty"`
}

// TimeRangePayload bounds a search by Unix seconds; 0 is open-ended.
type TimeRangePayload struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// FiltersPayload is the wire form of the optional query filters.
type FiltersPayload struct {
	Levels      []string          `json:"levels,omitempty"`
	TimeRange   *TimeRangePayload `json:"time_range,omitempty"`
	FilePattern string            `json:"file_pattern,omitempty"`
}

// SearchQueryPayload is the wire form of the search_logs request body.
type SearchQueryPayload struct {
	Terms          []SearchTermPayload `json:"terms"`
	GlobalOperator string              `json:"global_operator"`
	Filters        *FiltersPayload     `json:"filters,omitempty"`
}

// ToQuery converts the wire payload into the core's query type.
func (p SearchQueryPayload) ToQuery() query.Query {
	q := query.Query{GlobalOperator: query.Operator(p.GlobalOperator)}
	for _, t := range p.Terms {
		q.Terms = append(q.Terms, query.Term{
			ID:            t.ID,
			Value:         t.Value,
			Operator:      query.Operator(t.Operator),
			Enabled:       t.Enabled,
			CaseSensitive: t.CaseSensitive,
			IsRegex:       t.IsRegex,
			Priority:      t.Priority,
			Source:        query.TermSource(t.Source),
			PresetGroupID: t.PresetGroupID,
		})
	}
	if p.Filters != nil {
		f := &query.Filters{
			Levels:      p.Filters.Levels,
			FilePattern: p.Filters.FilePattern,
		}
		if p.Filters.TimeRange != nil {
			f.TimeRange = &query.TimeRange{From: p.Filters.TimeRange.From, To: p.Filters.TimeRange.To}
		}
		q.Filters = f
	}
	return q
}

// ImportProgress is the import-progress event payload.
type ImportProgress struct {
	WorkspaceID    string  `json:"workspace_id"`
	Progress       float64 `json:"progress"` // 0..100
	CurrentFile    string  `json:"current_file"`
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
}

// FromIngestProgress maps a pipeline progress tick onto the event payload.
func FromIngestProgress(p ingest.Progress) ImportProgress {
	pct := 0.0
	if p.TotalFilesEstimate > 0 {
		pct = 100 * float64(p.ProcessedFiles) / float64(p.TotalFilesEstimate)
		if pct > 100 {
			pct = 100
		}
	}
	return ImportProgress{
		WorkspaceID:    p.WorkspaceID,
		Progress:       pct,
		CurrentFile:    p.CurrentVirtualPath,
		TotalFiles:     p.TotalFilesEstimate,
		ProcessedFiles: p.ProcessedFiles,
	}
}

// WorkspaceUpdated is the workspace-updated event payload.
type WorkspaceUpdated struct {
	WorkspaceID string `json:"workspace_id"`
	Action      string `json:"action"` // "imported", "deleted"
}

// WorkspaceInfo is the get_workspace_info response.
type WorkspaceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
	TotalSize int64  `json:"total_size"`
	Status    string `json:"status"`
}

// FailedEntryPayload mirrors ingest.FailedEntry on the wire.
type FailedEntryPayload struct {
	VirtualPath string `json:"virtual_path"`
	Reason      string `json:"reason"`
}

// IngestReportPayload is the import_path response.
type IngestReportPayload struct {
	Added          int                  `json:"added"`
	Deduplicated   int                  `json:"deduplicated"`
	Failed         []FailedEntryPayload `json:"failed"`
	BombDetections int                  `json:"bomb_detections"`
	MaxDepthSeen   int                  `json:"max_depth_seen"`
	ElapsedMS      int64                `json:"elapsed_ms"`
}

// FromReport maps a pipeline report onto the wire payload.
func FromReport(r ingest.Report) IngestReportPayload {
	out := IngestReportPayload{
		Added:          r.Added,
		Deduplicated:   r.Deduplicated,
		BombDetections: r.BombDetections,
		MaxDepthSeen:   r.MaxDepthSeen,
		ElapsedMS:      r.Elapsed.Milliseconds(),
	}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, FailedEntryPayload{VirtualPath: f.VirtualPath, Reason: f.Reason})
	}
	return out
}

// SearchQuerySchema describes the search_logs request body. The schema
// is the boundary's authority on field names, so a camelCase payload
// fails validation instead of silently dropping fields.
func SearchQuerySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"terms", "global_operator"},
		Properties: map[string]*jsonschema.Schema{
			"terms": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"value"},
					Properties: map[string]*jsonschema.Schema{
						"id":              {Type: "string"},
						"value":           {Type: "string"},
						"operator":        {Type: "string", Enum: []any{"AND", "OR", "NOT"}},
						"enabled":         {Type: "boolean"},
						"case_sensitive":  {Type: "boolean"},
						"is_regex":        {Type: "boolean"},
						"priority":        {Type: "integer"},
						"source":          {Type: "string", Enum: []any{"user", "preset"}},
						"preset_group_id": {Type: "string"},
					},
				},
			},
			"global_operator": {Type: "string", Enum: []any{"AND", "OR", "NOT"}},
			"filters": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"levels": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"time_range": {
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"from": {Type: "integer"},
							"to":   {Type: "integer"},
						},
					},
					"file_pattern": {Type: "string"},
				},
			},
		},
	}
}

var (
	resolveOnce   sync.Once
	resolvedQuery *jsonschema.Resolved
	resolveErr    error
)

// ParseSearchQuery validates raw JSON against SearchQuerySchema and
// decodes it. Schema violations and malformed JSON both surface as
// InvalidQuery.
func ParseSearchQuery(data []byte) (SearchQueryPayload, error) {
	resolveOnce.Do(func() {
		resolvedQuery, resolveErr = SearchQuerySchema().Resolve(nil)
	})
	if resolveErr != nil {
		return SearchQueryPayload{}, cerr.Wrap(cerr.CodeInternal, "contract.ParseSearchQuery", "resolve schema", resolveErr)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return SearchQueryPayload{}, cerr.Wrap(cerr.CodeInvalidQuery, "contract.ParseSearchQuery", "malformed json", err)
	}
	if err := resolvedQuery.Validate(instance); err != nil {
		return SearchQueryPayload{}, cerr.Wrap(cerr.CodeInvalidQuery, "contract.ParseSearchQuery", "schema violation", err)
	}

	var payload SearchQueryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return SearchQueryPayload{}, cerr.Wrap(cerr.CodeInvalidQuery, "contract.ParseSearchQuery", "decode", err)
	}
	return payload, nil
}
