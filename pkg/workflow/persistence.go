package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// traceIDPattern validates a 32-hex-char OTEL trace id before it is used
// as an interaction idempotency key, per SPEC_FULL.md §12.
var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// PersistenceBackoffMin/Max bound the jittered retry delay between
// create_interaction / update_interaction attempts, mirroring the MCP
// client's call-retry jitter.
const (
	PersistenceBackoffMin = 250 * time.Millisecond
	PersistenceBackoffMax = 750 * time.Millisecond
	PersistenceMaxAttempts = 3
)

// RunConfig configures a single RunWithPersistence invocation.
type RunConfig struct {
	Question           string
	TenantID           any
	SessionID          string
	ThreadID           string
	ModelVersion       string
	PromptVersion      string
	SchemaSnapshotID   string
	DeadlineTS         time.Time
	PersistenceFailOpen bool
}

// RunWithPersistence wraps Graph.Run with the interaction-persistence
// lifecycle described in spec.md §4.6: create_interaction before the first
// node (fail-closed by default), the graph run itself, then
// update_interaction after the terminal node (always fail-open — a
// persistence failure after the answer has already been computed must
// never discard that answer).
func RunWithPersistence(ctx context.Context, g *Graph, tool InteractionTool, traceIDOf func(context.Context) string, cfg RunConfig) (AgentState, error) {
	threadID := cfg.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	initial := AgentState{
		ThreadID:         threadID,
		TenantID:         cfg.TenantID,
		RawUserInput:     cfg.Question,
		SchemaSnapshotID: cfg.SchemaSnapshotID,
		DeadlineTS:       cfg.DeadlineTS,
	}

	var interactionID string
	if tool != nil {
		traceID := traceIDOf(ctx)
		if !traceIDPattern.MatchString(traceID) {
			traceID = ""
		}
		idempotencyKey := traceID
		if idempotencyKey == "" {
			idempotencyKey = uuid.NewString()
		}

		id, err := withRetry(ctx, "create_interaction", func() (string, error) {
			return tool.CreateInteraction(ctx, CreateInteractionRequest{
				ConversationID:   cfg.SessionID,
				SchemaSnapshotID: cfg.SchemaSnapshotID,
				UserNLQText:      cfg.Question,
				ModelVersion:     cfg.ModelVersion,
				PromptVersion:    cfg.PromptVersion,
				TraceID:          idempotencyKey,
			})
		})
		if err != nil {
			if !cfg.PersistenceFailOpen {
				return initial, fmt.Errorf("interaction creation failed (persistence_fail_open=false): %w", err)
			}
			slog.Warn("continuing without interaction_id", "thread_id", threadID, "error", err)
		} else {
			interactionID = id
			initial.InteractionID = interactionID
		}
	}

	result, runErr := g.Run(ctx, initial)
	if runErr != nil {
		result.Error = runErr.Error()
		result.ErrorCategory = "system_crash"
	}

	if tool != nil && interactionID != "" {
		status := "SUCCESS"
		switch {
		case result.Error != "":
			status = "FAILURE"
		case result.AmbiguityType != "":
			status = "CLARIFICATION_REQUIRED"
		}
		responseText := lastMessage(result)
		if responseText == "" && result.Error != "" {
			responseText = "System Error: " + result.Error
		}

		_, updateErr := withRetry(ctx, "update_interaction", func() (struct{}, error) {
			return struct{}{}, tool.UpdateInteraction(ctx, UpdateInteractionRequest{
				InteractionID:   interactionID,
				GeneratedSQL:    result.CurrentSQL,
				ResponseText:    responseText,
				ResponseError:   result.Error,
				ExecutionStatus: status,
				ErrorType:       result.ErrorCategory,
				TablesUsed:      result.TableNames,
			})
		})
		if updateErr != nil {
			result.PersistenceFailed = true
			result.PersistenceError = updateErr.Error()
			slog.Error("interaction update failed after all retries",
				"trace_id", traceIDOf(ctx), "thread_id", threadID,
				"interaction_id", interactionID, "persistence_error", updateErr.Error())
		}
	}

	return result, runErr
}

func lastMessage(s AgentState) string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// withRetry retries fn up to PersistenceMaxAttempts times with jittered
// backoff between attempts, matching the MCP client's retry posture for
// transient persistence-layer failures.
func withRetry[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= PersistenceMaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == PersistenceMaxAttempts {
			break
		}
		backoff := PersistenceBackoffMin + time.Duration(rand.Int64N(int64(PersistenceBackoffMax-PersistenceBackoffMin)))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		slog.Info("retrying persistence operation", "op", op, "attempt", attempt, "error", err)
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, PersistenceMaxAttempts, lastErr)
}
