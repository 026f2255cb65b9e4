package workflow

import "context"

// LLMClient is the external language-model collaborator. Its prompt
// engineering and NL understanding quality are explicitly out of scope
// (SPEC_FULL.md §1 non-goals); the graph only depends on this narrow
// surface.
type LLMClient interface {
	// DetectAmbiguity inspects question against schemaContext and returns a
	// non-empty ambiguity type (e.g. "missing_table", "ambiguous_column")
	// if the request cannot be planned deterministically, else "".
	DetectAmbiguity(ctx context.Context, question, schemaContext string) (string, error)

	// Plan produces a procedural plan string used to steer Generate.
	Plan(ctx context.Context, question, schemaContext string) (string, error)

	// Generate produces a candidate SQL statement from a plan.
	Generate(ctx context.Context, question, schemaContext, plan string) (string, error)

	// Correct repairs sql given a validation or execution error message.
	Correct(ctx context.Context, sql, schemaContext, errMsg string) (string, error)

	// Synthesize produces the final natural-language answer from the
	// executed query's results (and, if present, a chart suggestion).
	Synthesize(ctx context.Context, question string, state AgentState) (string, error)

	// Clarify produces a clarifying question to surface to the user for
	// the given ambiguity type.
	Clarify(ctx context.Context, question, ambiguityType string) (string, error)
}

// SchemaRetriever is the external schema/vector-store collaborator.
type SchemaRetriever interface {
	// Retrieve returns a serialized schema context relevant to question,
	// plus the schema snapshot id it was drawn from.
	Retrieve(ctx context.Context, question string, tenantID any) (schemaContext string, snapshotID string, err error)
}

// SemanticCache is the external collaborator behind the cache_lookup node:
// a semantic nearest-neighbor lookup over previously answered questions.
type SemanticCache interface {
	// Lookup returns a previously validated SQL statement for a
	// semantically similar question, if one exists above the
	// configured similarity threshold.
	Lookup(ctx context.Context, question string, tenantID any) (sql string, hit bool, err error)
}

// InteractionTool is the create_interaction / update_interaction MCP tool
// pair consumed for interaction persistence (SPEC_FULL.md §4.6
// "Interaction persistence").
type InteractionTool interface {
	CreateInteraction(ctx context.Context, req CreateInteractionRequest) (interactionID string, err error)
	UpdateInteraction(ctx context.Context, req UpdateInteractionRequest) error
}

// CreateInteractionRequest is the payload sent before the first node runs.
type CreateInteractionRequest struct {
	ConversationID    string
	SchemaSnapshotID  string
	UserNLQText       string
	ModelVersion      string
	PromptVersion     string
	TraceID           string
}

// UpdateInteractionRequest is the payload sent after the terminal node.
type UpdateInteractionRequest struct {
	InteractionID    string
	GeneratedSQL     string
	ResponseText     string
	ResponseError    string
	ExecutionStatus  string
	ErrorType        string
	TablesUsed       []string
}

// Checkpointer persists AgentState by thread_id after each node, so a
// resumed run (e.g. after a user clarification) continues from the last
// transition, per spec.md §4.6 "Checkpointing".
type Checkpointer interface {
	Save(ctx context.Context, threadID string, state AgentState) error
	Load(ctx context.Context, threadID string) (AgentState, bool, error)
}
