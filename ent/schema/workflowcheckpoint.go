package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// WorkflowCheckpoint holds the schema definition for the WorkflowCheckpoint
// entity: the C6 graph's per-thread state snapshot, persisted after every
// node transition so a suspended run (e.g. awaiting user clarification)
// can resume from the last completed node.
type WorkflowCheckpoint struct {
	ent.Schema
}

// Fields of the WorkflowCheckpoint.
func (WorkflowCheckpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("thread_id").
			Unique().
			Immutable(),
		field.JSON("state", map[string]interface{}{}).
			Comment("Serialized AgentState snapshot"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the WorkflowCheckpoint.
func (WorkflowCheckpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("updated_at"),
	}
}
