// Package api provides the HTTP surface for the SQL agent runtime.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/config"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/database"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/evalrunner"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/registry"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/workflow"
)

// Server is the HTTP API server fronting the workflow graph, the
// recommendation registry, and the evaluation runner's regression-report
// store.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg        *config.Config
	runtimeCfg *config.RuntimeConfig
	dbClient   *database.Client

	graph           *workflow.Graph
	interactionTool workflow.InteractionTool
	telemetry       *telemetry.Service
	recommender     *registry.Recommender
	regressions     *evalrunner.RegressionStore
}

// NewServer creates a new API server with Echo v5. graph, interactionTool,
// and telemetrySvc must be non-nil; recommender and regressions are
// optional (their endpoints 404 when nil, e.g. in a deployment that
// only runs the query path).
func NewServer(
	cfg *config.Config,
	runtimeCfg *config.RuntimeConfig,
	dbClient *database.Client,
	graph *workflow.Graph,
	interactionTool workflow.InteractionTool,
	telemetrySvc *telemetry.Service,
) *Server {
	e := echo.New()

	s := &Server{
		echo:            e,
		cfg:             cfg,
		runtimeCfg:      runtimeCfg,
		dbClient:        dbClient,
		graph:           graph,
		interactionTool: interactionTool,
		telemetry:       telemetrySvc,
	}

	s.setupRoutes()
	return s
}

// SetRecommender wires the recommendation registry behind /recommend.
func (s *Server) SetRecommender(r *registry.Recommender) {
	s.recommender = r
}

// SetRegressionStore wires the evaluation runner's regression report store
// behind /regression-report.
func (s *Server) SetRegressionStore(rs *evalrunner.RegressionStore) {
	s.regressions = rs
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.queryHandler)
	v1.GET("/recommend/:query_pair_id", s.recommendHandler)
	v1.GET("/regression-report/:run_id", s.regressionReportHandler)
}

// Start starts the HTTP server on the given address (non-blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
