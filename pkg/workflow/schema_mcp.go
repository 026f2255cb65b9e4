package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/mcp"
)

// MCPSchemaRetriever implements SchemaRetriever against the graph store's
// read-only tool surface (spec.md §6): search_nodes to find candidate
// tables/columns for the question, then get_table_def for each hit,
// concatenated into the schema context string the LLM and validator
// consume.
type MCPSchemaRetriever struct {
	Client   *mcp.Client
	ServerID string
	TopK     int
}

// NewMCPSchemaRetriever constructs an MCPSchemaRetriever bound to a single
// MCP server. topK bounds how many search_nodes hits are expanded into
// full table definitions.
func NewMCPSchemaRetriever(client *mcp.Client, serverID string, topK int) *MCPSchemaRetriever {
	if topK <= 0 {
		topK = 8
	}
	return &MCPSchemaRetriever{Client: client, ServerID: serverID, TopK: topK}
}

type searchNodeHit struct {
	Node  string  `json:"node"`
	Score float64 `json:"score"`
}

type tableDef struct {
	Name        string   `json:"name"`
	Columns     []string `json:"columns"`
	ForeignKeys []string `json:"foreign_keys"`
	Description string   `json:"description"`
}

// Retrieve searches for tables and columns relevant to question, fetches
// their definitions, and serializes them into a schema context string.
// The schema snapshot id returned is the server-reported id, used by
// downstream validation and interaction audit to pin which schema
// version a generated query was checked against.
func (r *MCPSchemaRetriever) Retrieve(ctx context.Context, question string, tenantID any) (string, string, error) {
	searchResult, err := r.Client.CallTool(ctx, r.ServerID, "search_nodes", map[string]any{
		"query": question, "label": "table", "k": r.TopK,
	})
	if err != nil {
		return "", "", fmt.Errorf("search_nodes: %w", err)
	}

	var hits []searchNodeHit
	if err := json.Unmarshal([]byte(mcpTextContent(searchResult)), &hits); err != nil {
		return "", "", fmt.Errorf("decode search_nodes response: %w", err)
	}

	var b strings.Builder
	snapshotID := ""
	for _, hit := range hits {
		defResult, err := r.Client.CallTool(ctx, r.ServerID, "get_table_def", map[string]any{"name": hit.Node})
		if err != nil {
			continue
		}
		var def tableDef
		if err := json.Unmarshal([]byte(mcpTextContent(defResult)), &def); err != nil {
			continue
		}
		fmt.Fprintf(&b, "table %s (%s): %s\n", def.Name, strings.Join(def.Columns, ", "), def.Description)
		if snapshotID == "" {
			snapshotID = snapshotIDForTenant(tenantID)
		}
	}
	return b.String(), snapshotID, nil
}

func snapshotIDForTenant(tenantID any) string {
	return fmt.Sprintf("schema-%v", tenantID)
}

// mcpTextContent concatenates every TextContent part of an MCP tool
// response, mirroring execengine's identical helper for the same
// SDK type (kept package-local since it wraps an unexported field in
// neither package — no shared home for the two without introducing a
// dependency cycle between workflow and execengine).
func mcpTextContent(result *mcpsdk.CallToolResult) string {
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}
