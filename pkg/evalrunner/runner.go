package evalrunner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// QueryFunc invokes one end-to-end question through the workflow graph
// and returns the SQL it generated. The runner is decoupled from
// pkg/workflow so it can be driven by any SQL-producing callable,
// including a stub in tests.
type QueryFunc func(ctx context.Context, question string, tenantID int64) (sql string, err error)

// Config configures a single Run.
type Config struct {
	RunID       string
	DatasetName string
	Limit       int
	TenantID    int64
	Concurrency int
	Seed        int64
}

// LoadDataset reads a JSONL golden dataset from r.
func LoadDataset(r io.Reader) ([]GoldenCase, error) {
	var cases []GoldenCase
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c GoldenCase
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("parse golden case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return cases, nil
}

// Run executes query against every case in cases (bounded by cfg.Limit,
// 0 meaning all), up to cfg.Concurrency cases in flight at once, and
// returns the aggregated Summary.
func Run(ctx context.Context, cases []GoldenCase, query QueryFunc, cfg Config) (Summary, error) {
	if cfg.Limit > 0 && cfg.Limit < len(cases) {
		cases = cases[:cfg.Limit]
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]CaseResult, len(cases))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, c := range cases {
		i, c := i, c
		group.Go(func() error {
			tenantID := c.TenantID
			if tenantID == 0 {
				tenantID = cfg.TenantID
			}
			results[i] = runCase(gctx, query, c, tenantID)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Summary{}, err
	}

	return aggregate(cfg, results), nil
}

func runCase(ctx context.Context, query QueryFunc, c GoldenCase, tenantID int64) CaseResult {
	start := time.Now()
	actualSQL, err := query(ctx, c.Question, tenantID)
	latency := time.Since(start)

	result := CaseResult{
		CaseID:      c.ID,
		Question:    c.Question,
		ExpectedSQL: c.ExpectedSQL,
		ActualSQL:   actualSQL,
		Latency:     latency,
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.ExactMatch = exactMatch(c.ExpectedSQL, actualSQL)
	result.MetricSuiteV1 = metricSuiteV1(c.ExpectedSQL, actualSQL)
	result.MetricSuiteV2 = metricSuiteV2(c.ExpectedSQL, actualSQL)
	result.StructuralScore = weightedComposite(result.MetricSuiteV1)
	result.CompositeScore = compositeScore(result.MetricSuiteV1, result.MetricSuiteV2)
	return result
}

func aggregate(cfg Config, results []CaseResult) Summary {
	summary := Summary{
		RunID:          cfg.RunID,
		DatasetName:    cfg.DatasetName,
		SampleCount:    len(results),
		Cases:          results,
		MetricV1Scores: map[string]float64{},
		MetricV2Scores: map[string]float64{},
	}
	if len(results) == 0 {
		return summary
	}

	exactMatches := 0
	structuralTotal := 0.0
	compositeTotal := 0.0
	minStructural := 1.0
	latencies := make([]int64, 0, len(results))
	v1Totals := map[string]float64{}
	v2Totals := map[string]float64{}

	for _, r := range results {
		if r.Error != "" {
			continue
		}
		if r.ExactMatch {
			exactMatches++
		}
		structuralTotal += r.StructuralScore
		compositeTotal += r.CompositeScore
		if r.StructuralScore < minStructural {
			minStructural = r.StructuralScore
		}
		latencies = append(latencies, int64(r.Latency))
		for k, v := range r.MetricSuiteV1 {
			v1Totals[k] += v
		}
		for k, v := range r.MetricSuiteV2 {
			v2Totals[k] += v
		}
	}

	n := float64(len(results))
	summary.ExactMatchRate = float64(exactMatches) / n
	summary.AvgStructuralScore = structuralTotal / n
	summary.MinStructuralScore = minStructural
	summary.CompositeScore = compositeTotal / n
	for k, v := range v1Totals {
		summary.MetricV1Scores[k] = v / n
	}
	for k, v := range v2Totals {
		summary.MetricV2Scores[k] = v / n
	}

	if len(latencies) > 0 {
		total := int64(0)
		for _, l := range latencies {
			total += l
		}
		summary.LatencyMean = time.Duration(total / int64(len(latencies)))
		summary.LatencyP95 = time.Duration(percentile95(latencies))
	}

	sort.Slice(summary.Cases, func(i, j int) bool { return summary.Cases[i].CaseID < summary.Cases[j].CaseID })
	return summary
}

// DetectRegression compares current against baseline using the default
// thresholds (spec.md §4.7); accuracy_drop and p95_latency_increase_ratio
// are both measured relative to baseline.
func DetectRegression(current, baseline Summary) RegressionVerdict {
	accuracyDrop := baseline.ExactMatchRate - current.ExactMatchRate

	latencyIncrease := 0.0
	if baseline.LatencyP95 > 0 {
		latencyIncrease = float64(current.LatencyP95-baseline.LatencyP95) / float64(baseline.LatencyP95)
	}

	verdict := RegressionVerdict{
		AccuracyDrop:            accuracyDrop,
		P95LatencyIncreaseRatio: latencyIncrease,
	}
	verdict.IsRegression = accuracyDrop > DefaultAccuracyDropMax || latencyIncrease > DefaultLatencyP95IncreaseMax
	return verdict
}
