package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SqlInteraction holds the schema definition for the SqlInteraction
// entity: the per-question audit record created at the start of a
// workflow run and updated at the end, per spec.md §4.6 "Interaction
// persistence". Distinct from the teacher's LLMInteraction/MCPInteraction
// (which audit individual model/tool calls within an alert-triage agent
// run) — this entity audits one end-to-end text-to-SQL question.
type SqlInteraction struct {
	ent.Schema
}

// Fields of the SqlInteraction.
func (SqlInteraction) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("interaction_id").
			Unique().
			Immutable(),
		field.String("conversation_id").
			Immutable(),
		field.String("schema_snapshot_id").
			Immutable(),
		field.Text("user_nlq_text").
			Immutable(),
		field.String("model_version").
			Immutable(),
		field.String("prompt_version").
			Immutable(),
		field.String("trace_id").
			Optional().
			Nillable().
			Comment("OTEL trace id used as idempotency key, when valid"),

		field.Text("generated_sql").
			Optional().
			Nillable(),
		field.Text("response_text").
			Optional().
			Nillable(),
		field.Text("response_error").
			Optional().
			Nillable(),
		field.Enum("execution_status").
			Values("pending", "success", "failure", "clarification_required").
			Default("pending"),
		field.String("error_type").
			Optional().
			Nillable(),
		field.JSON("tables_used", []string{}).
			Optional(),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the SqlInteraction.
func (SqlInteraction) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("trace_id").Unique(),
		index.Fields("conversation_id", "created_at"),
	}
}
