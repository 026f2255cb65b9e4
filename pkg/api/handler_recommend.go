package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// recommendHandler handles GET /api/v1/recommend/:query_pair_id. It looks
// up the anchor query pair's question and asks the recommender for a
// small set of similar few-shot examples to prompt the generator with.
func (s *Server) recommendHandler(c *echo.Context) error {
	if s.recommender == nil {
		return echo.NewHTTPError(http.StatusNotFound, "recommendation registry not configured")
	}

	queryPairID := c.Param("query_pair_id")
	if queryPairID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query_pair_id is required")
	}

	ctx := c.Request().Context()
	anchor, err := s.dbClient.QueryPair.Get(ctx, queryPairID)
	if err != nil {
		return mapServiceError(err)
	}

	limit := 5
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	fallback := c.QueryParam("fallback") != "false"

	var tenantID any
	if raw := c.QueryParam("tenant_id"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tenantID = n
		}
	}

	result, err := s.recommender.Recommend(ctx, anchor.Question, tenantID, limit, fallback)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &result)
}
