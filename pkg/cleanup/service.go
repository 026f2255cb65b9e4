// Package cleanup enforces retention policies on the workflow's
// persisted tables.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/ent/semanticcacheentry"
	"github.com/jonkmatsumo/text2sql-sub000/ent/sqlinteraction"
	"github.com/jonkmatsumo/text2sql-sub000/ent/workflowcheckpoint"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/config"
)

// Service periodically enforces retention policies:
//   - Deletes SqlInteraction rows past the configured retention window.
//   - Deletes WorkflowCheckpoint rows for runs that never resumed and
//     have gone stale (abandoned clarify loops, crashed runs).
//   - Deletes SemanticCacheEntry rows past their expires_at.
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	client *ent.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, client *ent.Client) *Service {
	return &Service{config: cfg, client: client}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"interaction_retention_days", s.config.InteractionRetentionDays,
		"checkpoint_stale_after", s.config.CheckpointStaleAfter,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.cleanupOldInteractions(ctx)
	s.cleanupStaleCheckpoints(ctx)
	s.cleanupExpiredCacheEntries(ctx)
}

func (s *Service) cleanupOldInteractions(ctx context.Context) {
	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.config.InteractionRetentionDays)
	count, err := s.client.SqlInteraction.Delete().
		Where(sqlinteraction.CreatedAtLT(cutoff)).
		Exec(writeCtx)
	if err != nil {
		slog.Error("retention: interaction cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: deleted old interactions", "count", count)
	}
}

func (s *Service) cleanupStaleCheckpoints(ctx context.Context) {
	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.config.CheckpointStaleAfter)
	count, err := s.client.WorkflowCheckpoint.Delete().
		Where(workflowcheckpoint.UpdatedAtLT(cutoff)).
		Exec(writeCtx)
	if err != nil {
		slog.Error("retention: checkpoint cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: deleted stale checkpoints", "count", count)
	}
}

func (s *Service) cleanupExpiredCacheEntries(ctx context.Context) {
	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := s.client.SemanticCacheEntry.Delete().
		Where(semanticcacheentry.ExpiresAtLT(time.Now())).
		Exec(writeCtx)
	if err != nil {
		slog.Error("retention: semantic cache cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("retention: deleted expired cache entries", "count", count)
	}
}
