package workflow

import (
	"context"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/execengine"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlvalidator"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/tenantrewrite"
)

// Workflow bundles the external collaborators and the execution engine
// into the node functions that make up the graph, and exposes Build to
// assemble them into a Graph per spec.md §4.6's node/edge table.
type Workflow struct {
	LLM       LLMClient
	Schema    SchemaRetriever
	Cache     SemanticCache
	Engine    *execengine.Engine
	Validator sqlvalidator.Options
	Rewrite   tenantrewrite.Settings
}

// Build assembles every node and edge of the workflow graph.
func (w *Workflow) Build(g *Graph) {
	g.AddNode("cache_lookup", w.cacheLookup)
	g.AddNode("router", w.router)
	g.AddNode("clarify", w.clarify)
	g.AddNode("retrieve", w.retrieve)
	g.AddNode("plan", w.plan)
	g.AddNode("generate", w.generate)
	g.AddNode("validate", w.validate)
	g.AddNode("execute", w.execute)
	g.AddNode("correct", w.correct)
	g.AddNode("visualize", w.visualize)
	g.AddNode("synthesize", w.synthesize)

	g.SetEntryPoint("cache_lookup")

	g.AddConditionalEdges("cache_lookup", func(s AgentState) string {
		if s.FromCache {
			return "validate"
		}
		return "retrieve"
	})
	g.AddEdge("retrieve", "router")
	g.AddConditionalEdges("router", func(s AgentState) string {
		if s.AmbiguityType != "" {
			return "clarify"
		}
		if s.Error != "" {
			// Clarify loop bound reached: terminate rather than plan
			// against an unresolved ambiguity.
			return End
		}
		return "plan"
	})
	g.AddEdge("clarify", "router")
	g.AddEdge("plan", "generate")
	g.AddEdge("generate", "validate")
	g.AddConditionalEdges("validate", func(s AgentState) string {
		needsCorrection := (s.ASTValidationResult != nil && !s.ASTValidationResult.IsValid) || s.Error != ""
		if !needsCorrection {
			return "execute"
		}
		if s.RetryCount >= MaxCorrectionRounds {
			return End
		}
		return "correct"
	})
	g.AddConditionalEdges("execute", func(s AgentState) string {
		if s.Error != "" {
			if s.RetryCount >= MaxCorrectionRounds {
				return End
			}
			return "correct"
		}
		return "visualize"
	})
	g.AddEdge("visualize", "synthesize")
	g.AddEdge("correct", "validate")
	g.AddEdge("synthesize", End)
}

func (w *Workflow) cacheLookup(ctx context.Context, s AgentState) (AgentState, error) {
	if w.Cache == nil {
		return s, nil
	}
	sql, hit, err := w.Cache.Lookup(ctx, s.RawUserInput, s.TenantID)
	if err != nil {
		s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "cache_lookup", Decision: "error", Detail: err.Error()})
		return s, nil
	}
	s.FromCache = hit
	if hit {
		s.CurrentSQL = sql
	}
	s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "cache_lookup", Decision: boolDecision(hit)})
	return s, nil
}

func (w *Workflow) retrieve(ctx context.Context, s AgentState) (AgentState, error) {
	if w.Schema == nil {
		return s, nil
	}
	schemaContext, snapshotID, err := w.Schema.Retrieve(ctx, s.RawUserInput, s.TenantID)
	if err != nil {
		s.Error = err.Error()
		s.ErrorCategory = "schema_retrieval_failed"
		return s, nil
	}
	s.SchemaContext = schemaContext
	s.SchemaSnapshotID = snapshotID
	return s, nil
}

func (w *Workflow) router(ctx context.Context, s AgentState) (AgentState, error) {
	s.AmbiguityType = ""
	if w.LLM != nil {
		ambiguity, err := w.LLM.DetectAmbiguity(ctx, s.RawUserInput, s.SchemaContext)
		if err != nil {
			s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "router", Decision: "error", Detail: err.Error()})
			return s, nil
		}
		s.AmbiguityType = ambiguity
	}
	if s.AmbiguityType != "" && s.ClarifyCount >= MaxClarifyRounds {
		// Loop bound reached: surface the ambiguity instead of clarifying again.
		s.Error = "ambiguous request: " + s.AmbiguityType
		s.ErrorCategory = "ambiguity_unresolved"
		s.AmbiguityType = ""
	}
	s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "router", Decision: routeDecision(s.AmbiguityType)})
	return s, nil
}

func (w *Workflow) clarify(ctx context.Context, s AgentState) (AgentState, error) {
	s.ClarifyCount++
	if w.LLM == nil {
		return s, nil
	}
	question, err := w.LLM.Clarify(ctx, s.RawUserInput, s.AmbiguityType)
	if err != nil {
		s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "clarify", Decision: "error", Detail: err.Error()})
		return s, nil
	}
	s.Messages = append(s.Messages, ChatMessage{Role: "assistant", Content: question})
	return s, nil
}

func (w *Workflow) plan(ctx context.Context, s AgentState) (AgentState, error) {
	if w.LLM == nil {
		return s, nil
	}
	plan, err := w.LLM.Plan(ctx, s.RawUserInput, s.SchemaContext)
	if err != nil {
		s.Error = err.Error()
		s.ErrorCategory = "planning_failed"
		return s, nil
	}
	s.ProceduralPlan = plan
	return s, nil
}

func (w *Workflow) generate(ctx context.Context, s AgentState) (AgentState, error) {
	if w.LLM == nil {
		return s, nil
	}
	sql, err := w.LLM.Generate(ctx, s.RawUserInput, s.SchemaContext, s.ProceduralPlan)
	if err != nil {
		s.Error = err.Error()
		s.ErrorCategory = "generation_failed"
		return s, nil
	}
	s.ActiveQuery = sql
	s.CurrentSQL = sql
	return s, nil
}

func (w *Workflow) validate(ctx context.Context, s AgentState) (AgentState, error) {
	result := sqlvalidator.Validate(s.CurrentSQL, w.Validator)
	s.ASTValidationResult = &result
	if !result.IsValid {
		s.Error = ""
		for _, v := range result.Violations {
			s.ValidationFailures = AppendValidationFailure(s.ValidationFailures, string(v.Type)+": "+v.Message)
		}
	}
	s.TableNames = result.Metadata.TableLineage
	s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "validate", Decision: boolDecision(result.IsValid)})
	return s, nil
}

func (w *Workflow) execute(ctx context.Context, s AgentState) (AgentState, error) {
	if w.Engine == nil {
		s.Error = "execution engine not configured"
		s.ErrorCategory = "system_crash"
		return s, nil
	}
	req := execengine.Request{
		SQL:              s.CurrentSQL,
		TenantID:         s.TenantID,
		DeadlineTS:       s.DeadlineTS,
		SchemaSnapshotID: s.SchemaSnapshotID,
		ValidatorOptions: w.Validator,
		RewriteSettings:  w.Rewrite,
		IsRetry:          s.RetryCount > 0,
		FromCache:        s.FromCache,
	}
	result := w.Engine.Execute(ctx, req)
	if result.Err != nil {
		s.Error = result.Err.Message
		s.ErrorCategory = string(result.Err.Category)
		return s, nil
	}
	s.Error = ""
	s.ErrorCategory = ""
	s.QueryResult = result
	return s, nil
}

func (w *Workflow) correct(ctx context.Context, s AgentState) (AgentState, error) {
	s.RetryCount++
	priorError := s.Error
	s.Error = ""
	s.ErrorCategory = ""
	if w.LLM == nil {
		return s, nil
	}
	corrected, err := w.LLM.Correct(ctx, s.CurrentSQL, s.SchemaContext, priorError)
	if err != nil {
		s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "correct", Decision: "error", Detail: err.Error()})
		return s, nil
	}
	s.CurrentSQL = corrected
	s.ActiveQuery = corrected
	return s, nil
}

// visualize inspects the executed result and, when it is chart-shaped,
// attaches a ChartSuggestion for synthesize to reference. Per
// SPEC_FULL.md §4.6.1 it never fails the run: any internal error is
// recorded as a decision event and the state passes through unchanged.
func (w *Workflow) visualize(ctx context.Context, s AgentState) (AgentState, error) {
	suggestion, err := suggestChart(s.QueryResult)
	if err != nil {
		s.DecisionEvents = AppendEvent(s.DecisionEvents, DecisionEvent{Node: "visualize", Decision: "visualization_error", Detail: err.Error()})
		return s, nil
	}
	s.ChartSuggestion = suggestion
	return s, nil
}

func (w *Workflow) synthesize(ctx context.Context, s AgentState) (AgentState, error) {
	if w.LLM == nil {
		return s, nil
	}
	answer, err := w.LLM.Synthesize(ctx, s.RawUserInput, s)
	if err != nil {
		s.Error = err.Error()
		s.ErrorCategory = "synthesis_failed"
		return s, nil
	}
	s.Messages = append(s.Messages, ChatMessage{Role: "assistant", Content: answer})
	return s, nil
}

func boolDecision(b bool) string {
	if b {
		return "hit"
	}
	return "miss"
}

func routeDecision(ambiguityType string) string {
	if ambiguityType == "" {
		return "plan"
	}
	return "clarify:" + ambiguityType
}

