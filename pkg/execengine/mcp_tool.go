package execengine

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/mcp"
)

// ExecuteSQLQueryTool is the name of the MCP tool the reference runtime
// dispatches SQL execution to (spec.md §6's tool RPC envelope contract).
const ExecuteSQLQueryTool = "execute_sql_query"

// MCPQueryTool implements QueryTool by calling the execute_sql_query MCP
// tool on a fixed server and parsing its text content as the JSON-encoded
// ToolResponseEnvelope described in spec.md §6.
type MCPQueryTool struct {
	Client   *mcp.Client
	ServerID string
}

// NewMCPQueryTool constructs an MCPQueryTool bound to a single MCP server.
func NewMCPQueryTool(client *mcp.Client, serverID string) *MCPQueryTool {
	return &MCPQueryTool{Client: client, ServerID: serverID}
}

// ExecuteSQLQuery dispatches req to the execute_sql_query tool and decodes
// its response into a ToolResponseEnvelope. Any malformed-envelope failure
// is returned as an error — the caller (Engine.Execute) classifies it as
// CategoryToolResponseMalformed, never panicking on a bad payload.
func (t *MCPQueryTool) ExecuteSQLQuery(ctx context.Context, req QueryToolRequest) (ToolResponseEnvelope, error) {
	args := map[string]any{
		"sql":             req.SQL,
		"tenant_id":       req.TenantID,
		"params":          req.Params,
		"include_columns": req.IncludeColumns,
		"timeout_seconds": req.TimeoutSeconds,
	}
	if req.PageToken != "" {
		args["page_token"] = req.PageToken
	}
	if req.PageSize > 0 {
		args["page_size"] = req.PageSize
	}

	result, err := t.Client.CallTool(ctx, t.ServerID, ExecuteSQLQueryTool, args)
	if err != nil {
		return ToolResponseEnvelope{}, fmt.Errorf("call %s: %w", ExecuteSQLQueryTool, err)
	}

	text := extractTextContent(result)
	var wire wireEnvelope
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return ToolResponseEnvelope{}, fmt.Errorf("decode tool response envelope: %w", err)
	}
	return wire.toEnvelope(), nil
}

// extractTextContent concatenates every TextContent item in result,
// matching the reference implementation's tolerance of mixed content
// parts (non-text parts are ignored rather than treated as an error).
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

// wireEnvelope mirrors the JSON shape of spec.md §6's ToolResponse exactly
// (snake_case field names), decoded separately from ToolResponseEnvelope
// so the in-process Go type can use idiomatic naming.
type wireEnvelope struct {
	SchemaVersion string           `json:"schema_version"`
	Rows          []map[string]any `json:"rows"`
	Columns       []wireColumn     `json:"columns"`
	Metadata      wireMetadata     `json:"metadata"`
	Error         *wireError       `json:"error"`
}

type wireColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type wireMetadata struct {
	RowsReturned    int    `json:"rows_returned"`
	IsTruncated     bool   `json:"is_truncated"`
	RowLimit        int    `json:"row_limit"`
	NextPageToken   string `json:"next_page_token"`
	PartialReason   string `json:"partial_reason"`
	CapDetected     bool   `json:"cap_detected"`
	Provider        string `json:"provider"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

type wireError struct {
	Message        string `json:"message"`
	Category       string `json:"category"`
	Provider       string `json:"provider"`
	Code           string `json:"code"`
	ErrorCode      string `json:"error_code"`
	RetryAfterSecs int    `json:"retry_after_seconds"`
	IsRetryable    bool   `json:"is_retryable"`
}

func (w wireEnvelope) toEnvelope() ToolResponseEnvelope {
	columns := make([]ColumnMeta, len(w.Columns))
	for i, c := range w.Columns {
		columns[i] = ColumnMeta{Name: c.Name, Type: c.Type}
	}
	env := ToolResponseEnvelope{
		SchemaVersion: w.SchemaVersion,
		Rows:          w.Rows,
		Columns:       columns,
		Metadata: EnvelopeMetadata{
			RowsReturned:    w.Metadata.RowsReturned,
			IsTruncated:     w.Metadata.IsTruncated,
			RowLimit:        w.Metadata.RowLimit,
			NextPageToken:   w.Metadata.NextPageToken,
			PartialReason:   w.Metadata.PartialReason,
			CapDetected:     w.Metadata.CapDetected,
			Provider:        w.Metadata.Provider,
			ExecutionTimeMs: w.Metadata.ExecutionTimeMs,
		},
	}
	if w.Error != nil {
		env.Error = &EnvelopeError{
			Message:        w.Error.Message,
			Category:       w.Error.Category,
			Provider:       w.Error.Provider,
			Code:           w.Error.Code,
			ErrorCode:      w.Error.ErrorCode,
			RetryAfterSecs: w.Error.RetryAfterSecs,
			IsRetryable:    w.Error.IsRetryable,
		}
	}
	return env
}
