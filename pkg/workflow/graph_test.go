package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
)

func newTestService(t *testing.T) *telemetry.Service {
	t.Helper()
	backend, err := telemetry.NewOTELBackend("workflow-test", telemetry.BackendConfig{ServiceName: "workflow-test"})
	require.NoError(t, err)
	return telemetry.NewService(backend, telemetry.EnforceOff)
}

func TestGraphRunsFixedEdgesToEnd(t *testing.T) {
	var visited []string
	g := NewGraph(newTestService(t), nil)
	record := func(name string) NodeFunc {
		return func(ctx context.Context, s AgentState) (AgentState, error) {
			visited = append(visited, name)
			return s, nil
		}
	}
	g.AddNode("a", record("a"))
	g.AddNode("b", record("b"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", End)

	_, err := g.Run(context.Background(), AgentState{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, visited)
}

func TestGraphConditionalEdgesRoute(t *testing.T) {
	g := NewGraph(newTestService(t), nil)
	g.AddNode("start", func(ctx context.Context, s AgentState) (AgentState, error) {
		return s, nil
	})
	g.AddNode("yes", func(ctx context.Context, s AgentState) (AgentState, error) {
		s.Messages = append(s.Messages, ChatMessage{Role: "system", Content: "yes"})
		return s, nil
	})
	g.AddNode("no", func(ctx context.Context, s AgentState) (AgentState, error) {
		s.Messages = append(s.Messages, ChatMessage{Role: "system", Content: "no"})
		return s, nil
	})
	g.SetEntryPoint("start")
	g.AddConditionalEdges("start", func(s AgentState) string {
		if s.FromCache {
			return "yes"
		}
		return "no"
	})
	g.AddEdge("yes", End)
	g.AddEdge("no", End)

	result, err := g.Run(context.Background(), AgentState{ThreadID: "t1", FromCache: true})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "yes", result.Messages[0].Content)
}

func TestWorkflowRouterEnforcesClarifyLoopBound(t *testing.T) {
	w := &Workflow{LLM: stubLLM{ambiguity: "which_table"}}
	g := NewGraph(newTestService(t), nil)
	w.Build(g)

	state := AgentState{ThreadID: "t1", RawUserInput: "show me the data"}
	result, err := g.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, MaxClarifyRounds, result.ClarifyCount)
	assert.Equal(t, "ambiguity_unresolved", result.ErrorCategory)
	assert.Empty(t, result.AmbiguityType)
}

func TestWorkflowExecuteStopsAtMaxCorrectionRounds(t *testing.T) {
	w := &Workflow{LLM: stubLLM{sql: "select 1", correctedSQL: "select 1"}}
	g := NewGraph(newTestService(t), nil)
	w.Build(g)

	state := AgentState{ThreadID: "t1", RawUserInput: "q"}
	result, err := g.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "execution engine not configured", result.Error)
	assert.Equal(t, MaxCorrectionRounds, result.RetryCount)
}

type stubLLM struct {
	ambiguity    string
	sql          string
	correctedSQL string
}

func (s stubLLM) DetectAmbiguity(ctx context.Context, question, schemaContext string) (string, error) {
	return s.ambiguity, nil
}

func (s stubLLM) Plan(ctx context.Context, question, schemaContext string) (string, error) {
	return "plan", nil
}

func (s stubLLM) Generate(ctx context.Context, question, schemaContext, plan string) (string, error) {
	return s.sql, nil
}

func (s stubLLM) Correct(ctx context.Context, sql, schemaContext, errText string) (string, error) {
	return s.correctedSQL, nil
}

func (s stubLLM) Synthesize(ctx context.Context, question string, state AgentState) (string, error) {
	return "answer", nil
}

func (s stubLLM) Clarify(ctx context.Context, question, ambiguityType string) (string, error) {
	return "which table did you mean?", nil
}
