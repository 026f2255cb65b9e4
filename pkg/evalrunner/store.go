package evalrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/ent/regressionreport"
)

// RegressionStore persists and retrieves RegressionReport rows, used by
// the runner CLI to write each run's outcome and by pkg/api to serve
// /regression-report/:run_id.
type RegressionStore struct {
	client *ent.Client
}

// NewRegressionStore constructs a RegressionStore backed by client.
func NewRegressionStore(client *ent.Client) *RegressionStore {
	return &RegressionStore{client: client}
}

// Save writes summary and its regression verdict (against baselineID, if
// any) as a new RegressionReport row, returning the generated report id.
func (s *RegressionStore) Save(ctx context.Context, summary Summary, verdict RegressionVerdict, datasetVersion, baselineID string) (string, error) {
	reportID := uuid.NewString()
	builder := s.client.RegressionReport.Create().
		SetID(reportID).
		SetDatasetName(summary.DatasetName).
		SetDatasetVersion(datasetVersion).
		SetSampleCount(summary.SampleCount).
		SetCompositeScore(summary.CompositeScore).
		SetMetricV1Scores(summary.MetricV1Scores).
		SetMetricV2Scores(summary.MetricV2Scores).
		SetAccuracyDrop(verdict.AccuracyDrop).
		SetP95LatencyIncreaseRatio(verdict.P95LatencyIncreaseRatio).
		SetExactMatchRate(summary.ExactMatchRate).
		SetLatencyP95Ns(int64(summary.LatencyP95)).
		SetIsRegression(verdict.IsRegression)
	if baselineID != "" {
		builder = builder.SetBaselineReportID(baselineID)
	}

	if _, err := builder.Save(ctx); err != nil {
		return "", fmt.Errorf("save regression report: %w", err)
	}
	return reportID, nil
}

// Latest returns the most recent RegressionReport for datasetName, used
// to resolve the baseline for the next run.
func (s *RegressionStore) Latest(ctx context.Context, datasetName string) (*ent.RegressionReport, error) {
	row, err := s.client.RegressionReport.Query().
		Where(regressionreport.DatasetNameEQ(datasetName)).
		Order(ent.Desc(regressionreport.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest regression report: %w", err)
	}
	return row, nil
}

// BaselineSummary converts a previously saved RegressionReport back into
// a Summary suitable as the baseline argument to DetectRegression.
func BaselineSummary(row *ent.RegressionReport) Summary {
	return Summary{
		DatasetName:    row.DatasetName,
		DatasetVersion: row.DatasetVersion,
		ExactMatchRate: row.ExactMatchRate,
		LatencyP95:     time.Duration(row.LatencyP95Ns),
	}
}

// Get returns the RegressionReport with the given id.
func (s *RegressionStore) Get(ctx context.Context, runID string) (*ent.RegressionReport, error) {
	row, err := s.client.RegressionReport.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return row, nil
}
