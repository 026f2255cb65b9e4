package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/workflow"
)

// queryHandler handles POST /api/v1/query. It drives one question through
// the workflow graph end to end and returns the final answer, SQL, and
// chart suggestion (if any).
func (s *Server) queryHandler(c *echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	ctx := c.Request().Context()

	cfg := workflow.RunConfig{
		Question:            req.Question,
		TenantID:            req.TenantID,
		SessionID:           req.SessionID,
		PersistenceFailOpen: s.runtimeCfg.PersistenceFailOpen,
	}

	state, err := workflow.RunWithPersistence(ctx, s.graph, s.interactionTool, s.telemetry.CurrentTraceID, cfg)
	if err != nil {
		return mapServiceError(err)
	}

	resp := QueryResponse{
		ThreadID:        state.ThreadID,
		SQL:             state.CurrentSQL,
		Error:           state.Error,
		ErrorCategory:   state.ErrorCategory,
		ClarifyQuestion: clarifyQuestion(state),
	}
	if resp.Error == "" && resp.ClarifyQuestion == "" {
		resp.Answer = lastAssistantMessage(state)
	}
	if state.QueryResult != nil {
		resp.RowsReturned = state.QueryResult.RowsReturned
	}
	if state.ChartSuggestion != nil {
		resp.Chart = &ChartResponse{
			Kind:    state.ChartSuggestion.Kind,
			XField:  state.ChartSuggestion.XField,
			YFields: state.ChartSuggestion.YFields,
			Reason:  state.ChartSuggestion.Reason,
		}
	}

	// Errors are carried in the response body rather than the HTTP status:
	// the workflow graph degrades gracefully (correction loops, clarify
	// loops) and the terminal state is always a completed run.
	return c.JSON(http.StatusOK, &resp)
}

// clarifyQuestion returns the last assistant message when the run ended
// still waiting on the user to disambiguate, empty otherwise.
func clarifyQuestion(s workflow.AgentState) string {
	if s.AmbiguityType == "" {
		return ""
	}
	return lastAssistantMessage(s)
}

func lastAssistantMessage(s workflow.AgentState) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return s.Messages[i].Content
		}
	}
	return ""
}
