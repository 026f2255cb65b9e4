package execengine

import "context"

// QueryTool is the dispatch surface for executing a rewritten SQL
// statement against a DAL tool (the MCP "execute_sql_query" tool in the
// reference implementation, a direct DB call in this runtime's simplest
// deployment). Implementations translate their native response shape
// into a ToolResponseEnvelope.
type QueryTool interface {
	ExecuteSQLQuery(ctx context.Context, req QueryToolRequest) (ToolResponseEnvelope, error)
}

// QueryToolRequest is the fully-prepared call made to a QueryTool.
type QueryToolRequest struct {
	SQL              string
	TenantID         any
	Params           []any
	IncludeColumns   bool
	TimeoutSeconds   float64
	PageToken        string
	PageSize         int
}

// LegacyRowTool is implemented by older DAL tools that return a bare row
// list with no envelope metadata (no pagination token, no column
// descriptors). LegacyListShim adapts one into a QueryTool.
type LegacyRowTool interface {
	ExecuteSQLQueryRows(ctx context.Context, req QueryToolRequest) ([]map[string]any, error)
}

// LegacyListShim wraps a LegacyRowTool so the execution engine can
// dispatch to it like any other QueryTool. The resulting envelope always
// reports NextPageToken == "" (the legacy surface has no concept of
// continuation), so auto-pagination and prefetch scheduling naturally
// treat every legacy call as a single, final page.
type LegacyListShim struct {
	Tool LegacyRowTool
}

func (s LegacyListShim) ExecuteSQLQuery(ctx context.Context, req QueryToolRequest) (ToolResponseEnvelope, error) {
	rows, err := s.Tool.ExecuteSQLQueryRows(ctx, req)
	if err != nil {
		return ToolResponseEnvelope{}, err
	}
	return ToolResponseEnvelope{
		Rows:     rows,
		Metadata: EnvelopeMetadata{RowsReturned: len(rows)},
	}, nil
}
