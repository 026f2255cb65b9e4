package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SemanticCacheEntry holds the schema definition for the SemanticCacheEntry
// entity: the backing store for the workflow graph's cache_lookup node,
// keyed by a normalized-question embedding fingerprint rather than the raw
// question text so paraphrases of the same question can still hit.
type SemanticCacheEntry struct {
	ent.Schema
}

// Fields of the SemanticCacheEntry.
func (SemanticCacheEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("cache_entry_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.Text("question").
			Immutable(),
		field.String("question_fingerprint").
			Immutable().
			Comment("Deterministic hash of the normalized question text, used for the exact-match fast path"),
		field.JSON("embedding", []float32{}).
			Optional().
			Comment("Question embedding for approximate-match lookup; nil when only exact-match is supported"),
		field.Text("sql").
			Immutable(),
		field.String("schema_snapshot_id").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the SemanticCacheEntry.
func (SemanticCacheEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "question_fingerprint").Unique(),
		index.Fields("expires_at"),
	}
}
