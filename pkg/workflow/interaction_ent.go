package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/ent/sqlinteraction"
)

// EntInteractionTool implements InteractionTool against the SqlInteraction
// entity. CreateInteraction is idempotent on trace id: a retried create
// with the same trace id returns the existing row's id instead of erroring.
type EntInteractionTool struct {
	client *ent.Client
}

// NewEntInteractionTool constructs an EntInteractionTool backed by client.
func NewEntInteractionTool(client *ent.Client) *EntInteractionTool {
	return &EntInteractionTool{client: client}
}

// CreateInteraction creates the audit row for a new question, or returns the
// id of the row already created for req.TraceID if one exists.
func (t *EntInteractionTool) CreateInteraction(ctx context.Context, req CreateInteractionRequest) (string, error) {
	if req.TraceID != "" {
		existing, err := t.client.SqlInteraction.Query().
			Where(sqlinteraction.TraceIDEQ(req.TraceID)).
			Only(ctx)
		if err == nil {
			return existing.ID, nil
		}
		if !ent.IsNotFound(err) {
			return "", fmt.Errorf("lookup interaction by trace id: %w", err)
		}
	}

	interactionID := uuid.NewString()
	builder := t.client.SqlInteraction.Create().
		SetID(interactionID).
		SetConversationID(req.ConversationID).
		SetSchemaSnapshotID(req.SchemaSnapshotID).
		SetUserNlqText(req.UserNLQText).
		SetModelVersion(req.ModelVersion).
		SetPromptVersion(req.PromptVersion).
		SetExecutionStatus(sqlinteraction.ExecutionStatusPending)
	if req.TraceID != "" {
		builder = builder.SetTraceID(req.TraceID)
	}

	row, err := builder.Save(ctx)
	if err != nil {
		return "", fmt.Errorf("create interaction: %w", err)
	}
	return row.ID, nil
}

// UpdateInteraction records the final outcome of a question's run.
func (t *EntInteractionTool) UpdateInteraction(ctx context.Context, req UpdateInteractionRequest) error {
	builder := t.client.SqlInteraction.UpdateOneID(req.InteractionID).
		SetExecutionStatus(sqlinteraction.ExecutionStatus(strings.ToLower(req.ExecutionStatus)))

	if req.GeneratedSQL != "" {
		builder = builder.SetGeneratedSQL(req.GeneratedSQL)
	}
	if req.ResponseText != "" {
		builder = builder.SetResponseText(req.ResponseText)
	}
	if req.ResponseError != "" {
		builder = builder.SetResponseError(req.ResponseError)
	}
	if req.ErrorType != "" {
		builder = builder.SetErrorType(req.ErrorType)
	}
	if req.TablesUsed != nil {
		builder = builder.SetTablesUsed(req.TablesUsed)
	}

	if err := builder.Exec(ctx); err != nil {
		return fmt.Errorf("update interaction %s: %w", req.InteractionID, err)
	}
	return nil
}
