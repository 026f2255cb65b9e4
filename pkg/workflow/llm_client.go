package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/llm"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/session"
)

// GRPCLLMClient implements LLMClient by driving pkg/llm.Client's streaming
// gRPC completion call once per node, with a prompt fixed to that node's
// narrow job. Prompt engineering and NL-understanding quality are
// explicitly out of scope (SPEC_FULL.md §1); this adapter only shapes the
// plumbing, not the model's judgment.
type GRPCLLMClient struct {
	Client *llm.Client
}

// NewGRPCLLMClient wraps client as a workflow.LLMClient.
func NewGRPCLLMClient(client *llm.Client) *GRPCLLMClient {
	return &GRPCLLMClient{Client: client}
}

var sqlFencePattern = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

func (c *GRPCLLMClient) DetectAmbiguity(ctx context.Context, question, schemaContext string) (string, error) {
	system := "You classify whether a natural-language database question can be " +
		"answered deterministically against the given schema. Respond with exactly " +
		"one of: NONE, missing_table, ambiguous_column, missing_time_range, " +
		"ambiguous_metric. Respond with NONE if the question is answerable as-is."
	user := fmt.Sprintf("Schema:\n%s\n\nQuestion: %s", schemaContext, question)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "NONE") {
		return "", nil
	}
	return text, nil
}

func (c *GRPCLLMClient) Plan(ctx context.Context, question, schemaContext string) (string, error) {
	system := "You produce a short, numbered procedural plan (tables, joins, " +
		"filters, aggregation) for answering a database question. Do not write SQL."
	user := fmt.Sprintf("Schema:\n%s\n\nQuestion: %s", schemaContext, question)
	return c.complete(ctx, system, user)
}

func (c *GRPCLLMClient) Generate(ctx context.Context, question, schemaContext, plan string) (string, error) {
	system := "You write a single read-only SQL SELECT statement implementing the " +
		"given plan against the given schema. Respond with only the SQL statement, " +
		"in a fenced ```sql code block."
	user := fmt.Sprintf("Schema:\n%s\n\nQuestion: %s\n\nPlan:\n%s", schemaContext, question, plan)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return extractSQL(text), nil
}

func (c *GRPCLLMClient) Correct(ctx context.Context, sql, schemaContext, errMsg string) (string, error) {
	system := "You repair a SQL statement that failed validation or execution. " +
		"Respond with only the corrected SQL statement, in a fenced ```sql code block."
	user := fmt.Sprintf("Schema:\n%s\n\nFailing SQL:\n%s\n\nError:\n%s", schemaContext, sql, errMsg)
	text, err := c.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return extractSQL(text), nil
}

func (c *GRPCLLMClient) Synthesize(ctx context.Context, question string, state AgentState) (string, error) {
	system := "You summarize a query result set as a short natural-language answer " +
		"to the user's original question. Do not include raw SQL."
	user := fmt.Sprintf("Question: %s\n\nRows returned: %d", question, rowCount(state))
	return c.complete(ctx, system, user)
}

func (c *GRPCLLMClient) Clarify(ctx context.Context, question, ambiguityType string) (string, error) {
	system := "You write one short clarifying question to resolve the named " +
		"ambiguity type before a database question can be answered."
	user := fmt.Sprintf("Question: %s\n\nAmbiguity: %s", question, ambiguityType)
	return c.complete(ctx, system, user)
}

func rowCount(state AgentState) int {
	if state.QueryResult == nil {
		return 0
	}
	return state.QueryResult.RowsReturned
}

func extractSQL(text string) string {
	if m := sqlFencePattern.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// complete runs one non-streaming-from-the-caller's-perspective completion:
// it drives the streaming RPC to exhaustion and returns the final
// accumulated response chunk, matching the accumulation loop
// pkg/api/handlers.go uses for interactive sessions, but synchronous and
// single-shot rather than broadcast over a websocket.
func (c *GRPCLLMClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	sess := &session.Session{
		ID: "workflow",
		Messages: []session.Message{
			{Role: session.RoleSystem, Content: systemPrompt},
			{Role: session.RoleUser, Content: userPrompt},
		},
	}

	chunks, errs := c.Client.GenerateStream(ctx, sess)
	var accumulated string
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return accumulated, nil
			}
			if chunk.Error != "" {
				return "", fmt.Errorf("llm completion failed: %s", chunk.Error)
			}
			if !chunk.IsThinking {
				accumulated = chunk.Content
			}
		case err := <-errs:
			if err != nil {
				return "", fmt.Errorf("llm completion failed: %w", err)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
