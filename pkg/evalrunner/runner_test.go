package evalrunner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDatasetParsesJSONLines(t *testing.T) {
	data := `{"id":"1","question":"how many users","expected_sql":"SELECT count(*) FROM users"}
{"id":"2","question":"total revenue","expected_sql":"SELECT sum(amount) FROM orders"}
`
	cases, err := LoadDataset(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "1", cases[0].ID)
}

func TestRunAggregatesExactMatchRate(t *testing.T) {
	cases := []GoldenCase{
		{ID: "1", Question: "q1", ExpectedSQL: "SELECT id FROM users"},
		{ID: "2", Question: "q2", ExpectedSQL: "SELECT id FROM orders"},
	}
	query := func(ctx context.Context, question string, tenantID int64) (string, error) {
		if question == "q1" {
			return "SELECT id FROM users", nil
		}
		return "SELECT id FROM something_else", nil
	}

	summary, err := Run(context.Background(), cases, query, Config{RunID: "r1", DatasetName: "d1"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SampleCount)
	assert.InDelta(t, 0.5, summary.ExactMatchRate, 0.001)
}

func TestDetectRegressionFlagsAccuracyDrop(t *testing.T) {
	baseline := Summary{ExactMatchRate: 0.9, LatencyP95: 100}
	current := Summary{ExactMatchRate: 0.8, LatencyP95: 100}
	verdict := DetectRegression(current, baseline)
	assert.True(t, verdict.IsRegression)
	assert.InDelta(t, 0.1, verdict.AccuracyDrop, 0.001)
}

func TestDetectRegressionFlagsLatencyIncrease(t *testing.T) {
	baseline := Summary{ExactMatchRate: 0.9, LatencyP95: 100}
	current := Summary{ExactMatchRate: 0.9, LatencyP95: 130}
	verdict := DetectRegression(current, baseline)
	assert.True(t, verdict.IsRegression)
}

func TestDetectRegressionPassesWithinThresholds(t *testing.T) {
	baseline := Summary{ExactMatchRate: 0.9, LatencyP95: 100}
	current := Summary{ExactMatchRate: 0.87, LatencyP95: 110}
	verdict := DetectRegression(current, baseline)
	assert.False(t, verdict.IsRegression)
}
