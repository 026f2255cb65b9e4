package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// RegressionAlert carries the fields of a regression verdict worth
// surfacing to a human (pkg/evalrunner.RegressionVerdict plus the run
// identifiers needed to link back to the report).
type RegressionAlert struct {
	RunID                   string
	DatasetName             string
	DatasetVersion          string
	BaselineReportID        string
	CompositeScore          float64
	AccuracyDrop            float64
	P95LatencyIncreaseRatio float64
}

// Service handles Slack notification delivery for evaluation regressions.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyRegression posts a regression alert for one evaluation run.
// Deduplicated per run id: if a message for this run's fingerprint
// already exists in the channel's recent history, it is not reposted.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyRegression(ctx context.Context, alert RegressionAlert) {
	if s == nil {
		return
	}

	fingerprint := regressionFingerprint(alert.RunID)
	if existing, err := s.client.FindMessageByFingerprint(ctx, fingerprint); err != nil {
		s.logger.Warn("failed to search for existing regression alert",
			"run_id", alert.RunID, "error", err)
	} else if existing != "" {
		return
	}

	blocks := BuildRegressionMessage(alert, s.dashboardURL, fingerprint)
	if err := s.client.PostMessage(ctx, blocks, "", 10*time.Second); err != nil {
		s.logger.Error("failed to send regression alert",
			"run_id", alert.RunID, "dataset", alert.DatasetName, "error", err)
	}
}

func regressionFingerprint(runID string) string {
	return fmt.Sprintf("regression-run:%s", runID)
}
