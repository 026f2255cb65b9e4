// Package evalrunner executes the workflow graph against a golden JSONL
// dataset, scores each case with MetricSuiteV1/V2 (spec.md §4.7), and
// compares the aggregate against a baseline run to flag regressions.
package evalrunner

import "time"

// GoldenCase is one line of the JSONL dataset.
type GoldenCase struct {
	ID             string `json:"id"`
	Question       string `json:"question"`
	ExpectedSQL    string `json:"expected_sql"`
	TenantID       int64  `json:"tenant_id"`
	CanonicalGroup string `json:"canonical_group,omitempty"`
}

// CaseResult is the outcome of running one GoldenCase.
type CaseResult struct {
	CaseID       string        `json:"case_id"`
	Question     string        `json:"question"`
	ExpectedSQL  string        `json:"expected_sql"`
	ActualSQL    string        `json:"actual_sql"`
	ExactMatch   bool          `json:"exact_match"`
	MetricSuiteV1 map[string]float64 `json:"metric_suite_v1"`
	MetricSuiteV2 map[string]float64 `json:"metric_suite_v2"`
	StructuralScore float64     `json:"structural_score"`
	CompositeScore  float64     `json:"composite_score"`
	Latency      time.Duration `json:"latency_ns"`
	Error        string        `json:"error,omitempty"`
}

// Summary aggregates a full run.
type Summary struct {
	RunID              string        `json:"run_id"`
	DatasetName        string        `json:"dataset_name"`
	DatasetVersion     string        `json:"dataset_version"`
	SampleCount        int           `json:"sample_count"`
	ExactMatchRate     float64       `json:"exact_match_rate"`
	AvgStructuralScore float64       `json:"avg_structural_score"`
	MinStructuralScore float64       `json:"min_structural_score"`
	CompositeScore     float64       `json:"composite_score"`
	MetricV1Scores     map[string]float64 `json:"metric_v1_scores"`
	MetricV2Scores     map[string]float64 `json:"metric_v2_scores"`
	LatencyMean        time.Duration `json:"latency_mean_ns"`
	LatencyP95         time.Duration `json:"latency_p95_ns"`
	Cases              []CaseResult  `json:"cases"`
}

// RegressionVerdict is the output of comparing a Summary against a
// baseline Summary.
type RegressionVerdict struct {
	IsRegression            bool    `json:"is_regression"`
	AccuracyDrop            float64 `json:"accuracy_drop"`
	P95LatencyIncreaseRatio float64 `json:"p95_latency_increase_ratio"`
	BaselineReportID        string  `json:"baseline_report_id,omitempty"`
}

// DefaultAccuracyDropMax and DefaultLatencyP95IncreaseMax are the
// regression detector's default thresholds (spec.md §4.7).
const (
	DefaultAccuracyDropMax        = 0.05
	DefaultLatencyP95IncreaseMax  = 0.20
)

// metricV1Weights are the MetricSuiteV1 subscore weights (spec.md §4.7 table).
var metricV1Weights = map[string]float64{
	"table_overlap":        0.35,
	"join_similarity":       0.15,
	"aggregation_match":    0.15,
	"groupby_match":        0.10,
	"predicate_similarity": 0.15,
	"limit_match":          0.10,
}
