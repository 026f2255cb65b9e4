package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RegressionReport holds the schema definition for the RegressionReport
// entity: the persisted output of one C7 evaluation run against a golden
// dataset, recording both MetricSuiteV1/V2 scores and the regression
// verdict relative to the prior baseline run.
type RegressionReport struct {
	ent.Schema
}

// Fields of the RegressionReport.
func (RegressionReport) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("report_id").
			Unique().
			Immutable(),
		field.String("dataset_name").
			Immutable(),
		field.String("dataset_version").
			Immutable(),
		field.String("baseline_report_id").
			Optional().
			Nillable(),
		field.Int("sample_count").
			Immutable(),
		field.Float("composite_score").
			Comment("0.6*MetricSuiteV1 + 0.4*MetricSuiteV2, averaged over the dataset"),
		field.JSON("metric_v1_scores", map[string]float64{}).
			Comment("table_overlap, join_similarity, aggregation_match, groupby_match, predicate_similarity, limit_match"),
		field.JSON("metric_v2_scores", map[string]float64{}),
		field.Float("accuracy_drop").
			Optional(),
		field.Float("p95_latency_increase_ratio").
			Optional(),
		field.Float("exact_match_rate").
			Comment("raw score, recorded so a later run can use this report as its baseline"),
		field.Int64("latency_p95_ns").
			Comment("raw p95 latency in nanoseconds, recorded for the same reason"),
		field.Bool("is_regression").
			Default(false),
		field.JSON("per_case_results", []map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the RegressionReport.
func (RegressionReport) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("dataset_name", "created_at"),
	}
}
