package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// QueryPair holds the schema definition for the QueryPair entity: a
// (question, sql) exemplar used by the C8 recommendation pipeline as a
// retrieval candidate, and by C7 as a golden-dataset source when imported
// from a JSONL fixture.
type QueryPair struct {
	ent.Schema
}

// Fields of the QueryPair.
func (QueryPair) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("query_pair_id").
			Unique().
			Immutable(),
		field.Text("question").
			Immutable(),
		field.Text("sql").
			Immutable(),
		field.String("fingerprint").
			Immutable().
			Comment("Normalized-SQL fingerprint; dedup key"),
		field.String("canonical_group_id").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("verified", "seeded", "interaction", "tombstoned").
			Default("seeded"),
		field.Enum("source").
			Values("pinned", "verified", "seeded", "interaction").
			Default("seeded"),
		field.Float("similarity_hint").
			Optional().
			Comment("Cached embedding-similarity score from last retrieval, for ranking stability across calls"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_used_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the QueryPair.
func (QueryPair) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("fingerprint").Unique(),
		index.Fields("status", "source"),
	}
}
