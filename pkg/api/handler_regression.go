package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// regressionReportResponse mirrors the persisted RegressionReport fields
// the eval runner CLI writes after each dataset run.
type regressionReportResponse struct {
	RunID                   string             `json:"run_id"`
	DatasetName             string             `json:"dataset_name"`
	DatasetVersion          string             `json:"dataset_version"`
	BaselineReportID        string             `json:"baseline_report_id,omitempty"`
	SampleCount             int                `json:"sample_count"`
	CompositeScore          float64            `json:"composite_score"`
	MetricV1Scores          map[string]float64 `json:"metric_v1_scores"`
	MetricV2Scores          map[string]float64 `json:"metric_v2_scores"`
	AccuracyDrop            float64            `json:"accuracy_drop,omitempty"`
	P95LatencyIncreaseRatio float64            `json:"p95_latency_increase_ratio,omitempty"`
	IsRegression            bool               `json:"is_regression"`
}

// regressionReportHandler handles GET /api/v1/regression-report/:run_id.
func (s *Server) regressionReportHandler(c *echo.Context) error {
	if s.regressions == nil {
		return echo.NewHTTPError(http.StatusNotFound, "regression store not configured")
	}

	runID := c.Param("run_id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run_id is required")
	}

	report, err := s.regressions.Get(c.Request().Context(), runID)
	if err != nil {
		return mapServiceError(err)
	}

	resp := regressionReportResponse{
		RunID:                   report.ID,
		DatasetName:             report.DatasetName,
		DatasetVersion:          report.DatasetVersion,
		SampleCount:             report.SampleCount,
		CompositeScore:          report.CompositeScore,
		MetricV1Scores:          report.MetricV1Scores,
		MetricV2Scores:          report.MetricV2Scores,
		AccuracyDrop:            report.AccuracyDrop,
		P95LatencyIncreaseRatio: report.P95LatencyIncreaseRatio,
		IsRegression:            report.IsRegression,
	}
	if report.BaselineReportID != nil {
		resp.BaselineReportID = *report.BaselineReportID
	}
	return c.JSON(http.StatusOK, &resp)
}
