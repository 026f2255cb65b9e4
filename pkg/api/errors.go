package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/execengine"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/tenantrewrite"
)

// mapServiceError maps domain-layer errors to HTTP error responses. Used by
// handlers that fail before a workflow run starts (e.g. the interaction
// lookups behind /recommend and /regression-report); errors surfaced during
// a workflow run itself are carried on AgentState.Error/ErrorCategory and
// returned as a 200 with an error field instead, since a partially
// completed run (cache hit, clarify) is not an HTTP failure.
func mapServiceError(err error) *echo.HTTPError {
	if ent.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}

	var rewriteErr *tenantrewrite.RewriteError
	if errors.As(err, &rewriteErr) {
		return echo.NewHTTPError(http.StatusBadRequest, rewriteErr.ErrorCode())
	}

	var execErr *execengine.ExecError
	if errors.As(err, &execErr) {
		switch execErr.Category {
		case execengine.CategorySecurityPolicyViolation:
			return echo.NewHTTPError(http.StatusForbidden, execErr.Error())
		case execengine.CategoryTimeout:
			return echo.NewHTTPError(http.StatusGatewayTimeout, execErr.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, execErr.Error())
		}
	}

	slog.Error("unexpected server error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
