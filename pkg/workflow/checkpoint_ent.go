package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
)

// EntCheckpointer implements Checkpointer against the WorkflowCheckpoint
// entity, upserting the full AgentState as a JSON snapshot after every node
// transition.
type EntCheckpointer struct {
	client *ent.Client
}

// NewEntCheckpointer constructs an EntCheckpointer backed by client.
func NewEntCheckpointer(client *ent.Client) *EntCheckpointer {
	return &EntCheckpointer{client: client}
}

// Save creates or overwrites the checkpoint row for threadID.
func (c *EntCheckpointer) Save(ctx context.Context, threadID string, state AgentState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal agent state: %w", err)
	}
	var snapshot map[string]interface{}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("unmarshal agent state snapshot: %w", err)
	}

	_, err = c.client.WorkflowCheckpoint.Get(ctx, threadID)
	if err != nil {
		if !ent.IsNotFound(err) {
			return fmt.Errorf("load checkpoint for thread %s: %w", threadID, err)
		}
		if _, err := c.client.WorkflowCheckpoint.Create().
			SetID(threadID).
			SetState(snapshot).
			Save(ctx); err != nil {
			return fmt.Errorf("create checkpoint for thread %s: %w", threadID, err)
		}
		return nil
	}

	if err := c.client.WorkflowCheckpoint.UpdateOneID(threadID).
		SetState(snapshot).
		Exec(ctx); err != nil {
		return fmt.Errorf("update checkpoint for thread %s: %w", threadID, err)
	}
	return nil
}

// Load fetches the most recent checkpoint for threadID, if any.
func (c *EntCheckpointer) Load(ctx context.Context, threadID string) (AgentState, bool, error) {
	var state AgentState
	row, err := c.client.WorkflowCheckpoint.Get(ctx, threadID)
	if err != nil {
		if ent.IsNotFound(err) {
			return state, false, nil
		}
		return state, false, fmt.Errorf("load checkpoint for thread %s: %w", threadID, err)
	}

	raw, err := json.Marshal(row.State)
	if err != nil {
		return state, false, fmt.Errorf("marshal checkpoint state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, false, fmt.Errorf("unmarshal checkpoint state: %w", err)
	}
	return state, true, nil
}
