// Command evalrunner drives a golden JSONL dataset through the workflow
// graph, scores the results, and flags regressions against the dataset's
// most recent recorded run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jonkmatsumo/text2sql-sub000/internal/bootstrap"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/evalrunner"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/slack"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/workflow"
)

func main() {
	configDir := flag.String("config-dir", bootstrap.GetEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	datasetPath := flag.String("dataset", "", "Path to the golden JSONL dataset (required)")
	outputDir := flag.String("output-dir", "", "Directory to write the run summary JSON into (required)")
	datasetName := flag.String("dataset-name", "", "Dataset name, defaults to the dataset file's base name without extension")
	datasetVersion := flag.String("dataset-version", "unversioned", "Dataset version recorded on the regression report")
	limit := flag.Int("limit", 0, "Maximum number of cases to run, 0 means all")
	tenantID := flag.Int64("tenant-id", 0, "Default tenant id for cases that don't set one")
	concurrency := flag.Int("concurrency", 4, "Maximum number of cases in flight at once")
	seed := flag.Int64("seed", 0, "Sampling seed, reserved for future deterministic subsampling")
	runID := flag.String("run-id", "", "Run id to record, defaults to a generated UUID")
	flag.Parse()

	if *datasetPath == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "usage: evalrunner --dataset PATH --output-dir DIR [flags]")
		os.Exit(2)
	}

	if err := run(*configDir, *datasetPath, *outputDir, *datasetName, *datasetVersion, *limit, *tenantID, *concurrency, *seed, *runID); err != nil {
		slog.Error("evaluation run failed", "error", err)
		os.Exit(1)
	}
}

func run(configDir, datasetPath, outputDir, datasetName, datasetVersion string, limit int, tenantID int64, concurrency int, seed int64, runID string) error {
	ctx := context.Background()

	rt, err := bootstrap.New(ctx, configDir)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			slog.Error("error closing runtime dependencies", "error", err)
		}
	}()

	f, err := os.Open(datasetPath)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	cases, err := evalrunner.LoadDataset(f)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	if len(cases) == 0 {
		return errors.New("dataset contains no cases")
	}

	if datasetName == "" {
		base := filepath.Base(datasetPath)
		datasetName = base[:len(base)-len(filepath.Ext(base))]
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	cfg := evalrunner.Config{
		RunID:       runID,
		DatasetName: datasetName,
		Limit:       limit,
		TenantID:    tenantID,
		Concurrency: concurrency,
		Seed:        seed,
	}

	query := queryFunc(rt.Graph, rt.Interaction, rt.Telemetry, rt.RuntimeCfg.DeadlineMargin)

	slog.Info("running evaluation dataset", "dataset", datasetName, "cases", len(cases), "run_id", runID)
	summary, err := evalrunner.Run(ctx, cases, query, cfg)
	if err != nil {
		return fmt.Errorf("run dataset: %w", err)
	}
	summary.DatasetVersion = datasetVersion

	baselineRow, err := rt.Regressions.Latest(ctx, datasetName)
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}

	var verdict evalrunner.RegressionVerdict
	baselineID := ""
	if baselineRow != nil {
		baselineID = baselineRow.ID
		verdict = evalrunner.DetectRegression(summary, evalrunner.BaselineSummary(baselineRow))
		verdict.BaselineReportID = baselineID
	}

	reportID, err := rt.Regressions.Save(ctx, summary, verdict, datasetVersion, baselineID)
	if err != nil {
		return fmt.Errorf("save regression report: %w", err)
	}
	slog.Info("evaluation run complete",
		"report_id", reportID,
		"exact_match_rate", summary.ExactMatchRate,
		"composite_score", summary.CompositeScore,
		"is_regression", verdict.IsRegression,
	)

	if err := writeSummary(outputDir, runID, summary, verdict); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if verdict.IsRegression {
		rt.Alerts.NotifyRegression(ctx, slack.RegressionAlert{
			RunID:                   reportID,
			DatasetName:             summary.DatasetName,
			DatasetVersion:          summary.DatasetVersion,
			BaselineReportID:        baselineID,
			CompositeScore:          summary.CompositeScore,
			AccuracyDrop:            verdict.AccuracyDrop,
			P95LatencyIncreaseRatio: verdict.P95LatencyIncreaseRatio,
		})
		return fmt.Errorf("regression detected: accuracy_drop=%.4f p95_latency_increase_ratio=%.4f", verdict.AccuracyDrop, verdict.P95LatencyIncreaseRatio)
	}
	return nil
}

// queryFunc adapts the workflow graph into an evalrunner.QueryFunc by
// running one question through RunWithPersistence end to end and
// returning the generated SQL.
func queryFunc(graph *workflow.Graph, tool workflow.InteractionTool, telemetrySvc *telemetry.Service, deadlineMargin time.Duration) evalrunner.QueryFunc {
	return func(ctx context.Context, question string, tenantID int64) (string, error) {
		runCfg := workflow.RunConfig{
			Question:   question,
			TenantID:   tenantID,
			DeadlineTS: time.Now().Add(deadlineMargin + 30*time.Second),
		}
		state, err := workflow.RunWithPersistence(ctx, graph, tool, telemetrySvc.CurrentTraceID, runCfg)
		if err != nil {
			return "", err
		}
		if state.Error != "" {
			return state.CurrentSQL, errors.New(state.Error)
		}
		return state.CurrentSQL, nil
	}
}

func writeSummary(outputDir, runID string, summary evalrunner.Summary, verdict evalrunner.RegressionVerdict) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	out := struct {
		Summary evalrunner.Summary           `json:"summary"`
		Verdict evalrunner.RegressionVerdict `json:"verdict"`
	}{Summary: summary, Verdict: verdict}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(outputDir, runID+".json")
	return os.WriteFile(path, data, 0o644)
}
