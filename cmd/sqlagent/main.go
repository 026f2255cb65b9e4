// Command sqlagent runs the text-to-SQL agent's HTTP API: the workflow
// graph, the recommendation registry, and regression reporting.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/internal/bootstrap"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/api"
)

func main() {
	configDir := flag.String("config-dir",
		bootstrap.GetEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	ctx := context.Background()

	rt, err := bootstrap.New(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize runtime", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			slog.Error("error closing runtime dependencies", "error", err)
		}
	}()

	server := api.NewServer(rt.Config, rt.RuntimeCfg, rt.DB, rt.Graph, rt.Interaction, rt.Telemetry)
	server.SetRecommender(rt.Recommender)
	server.SetRegressionStore(rt.Regressions)

	rt.Cleanup.Start(ctx)
	defer rt.Cleanup.Stop()

	httpPort := rt.RuntimeCfg.HTTPPort
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "port", httpPort)
		if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during graceful shutdown", "error", err)
	}
}
