// Package bootstrap wires the dependencies shared by every binary that
// drives the workflow graph: configuration, the database client,
// telemetry, the MCP client, the LLM client, and the graph itself. Both
// cmd/sqlagent and cmd/evalrunner build a Runtime the same way so the two
// binaries stay behaviorally identical outside of their own entrypoints.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/cleanup"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/config"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/database"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/evalrunner"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/execengine"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/llm"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/mcp"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/registry"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/slack"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlvalidator"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/tenantrewrite"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/workflow"
)

// Runtime holds every dependency a binary needs to drive the workflow
// graph, plus the API-surface-only pieces (recommender, regression
// store) that cmd/sqlagent layers an HTTP server on top of.
type Runtime struct {
	Config      *config.Config
	RuntimeCfg  *config.RuntimeConfig
	DB          *database.Client
	Telemetry   *telemetry.Service
	MCP         *mcp.Client
	Graph       *workflow.Graph
	Interaction workflow.InteractionTool
	Recommender *registry.Recommender
	Regressions *evalrunner.RegressionStore
	Alerts      *slack.Service
	Cleanup     *cleanup.Service

	backend *telemetry.OTELBackend
}

// GetEnv returns os.Getenv(key), or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// New loads configuration from configDir and wires every downstream
// dependency. Callers must defer rt.Close() on success.
func New(ctx context.Context, configDir string) (*Runtime, error) {
	envPath := configDir + "/.env"
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	}

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("initialize configuration: %w", err)
	}

	runtimeCfg, err := config.LoadRuntimeConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load runtime configuration: %w", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	slog.Info("connected to database")

	backend, err := telemetry.NewOTELBackend(runtimeCfg.OTELServiceName, telemetry.BackendConfig{
		ServiceName: runtimeCfg.OTELServiceName,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("initialize telemetry backend: %w", err)
	}
	telemetrySvc := telemetry.NewService(backend, telemetry.EnforceWarn)

	mcpFactory := mcp.NewClientFactory(cfg.MCPServerRegistry)
	graphServerID := GetEnv("MCP_GRAPH_SERVER_ID", "graph_store")
	queryServerID := GetEnv("MCP_QUERY_SERVER_ID", "sql_executor")
	serverIDs := dedupeStrings(graphServerID, queryServerID)

	mcpClient, err := mcpFactory.CreateClient(ctx, serverIDs)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("initialize mcp client: %w", err)
	}
	if failed := mcpClient.FailedServers(); len(failed) > 0 {
		slog.Warn("some mcp servers failed to initialize", "servers", failed)
	}

	llmAddr := GetEnv("LLM_SERVICE_ADDR", "localhost:50051")
	llmClient, err := llm.NewClient(llmAddr)
	if err != nil {
		_ = mcpClient.Close()
		_ = dbClient.Close()
		return nil, fmt.Errorf("connect to llm service: %w", err)
	}

	tenantColumn := GetEnv("TENANT_COLUMN", "tenant_id")
	rewriteSettings := tenantrewrite.DefaultSettings(tenantColumn)
	rewriteSettings.MaxTargets = runtimeCfg.TenantRewriteMaxTargets
	rewriteSettings.MaxParams = runtimeCfg.TenantRewriteMaxParams
	rewriteSettings.MaxASTNodes = runtimeCfg.MaxSQLASTNodes
	rewriteSettings.AssertInvariants = runtimeCfg.TenantRewriteAssertInvariants

	validatorOpts := sqlvalidator.Options{
		Dialect:           runtimeCfg.QueryTargetProvider,
		MaxJoinComplexity: runtimeCfg.MaxJoinComplexity,
		ColumnMode:        sqlvalidator.Mode(runtimeCfg.ColumnAllowlistMode),
		SensitiveMode:     sqlvalidator.ModeBlock,
	}
	if !runtimeCfg.BlockSensitiveColumns {
		validatorOpts.SensitiveMode = sqlvalidator.ModeWarn
	}

	queryTool := execengine.NewMCPQueryTool(mcpClient, queryServerID)
	engine := &execengine.Engine{
		Tool:           queryTool,
		Telemetry:      telemetrySvc,
		AutoPagination: runtimeCfg.AutoPagination,
		MaxPages:       runtimeCfg.AutoPaginationMaxPages,
		MaxRows:        runtimeCfg.AutoPaginationMaxRows,
		LegacyListShim: runtimeCfg.ToolResponseLegacyShim,
	}

	semanticCache := workflow.NewEntSemanticCache(dbClient.Client)
	interactionTool := workflow.NewEntInteractionTool(dbClient.Client)
	checkpointer := workflow.NewEntCheckpointer(dbClient.Client)
	schemaRetriever := workflow.NewMCPSchemaRetriever(mcpClient, graphServerID, 8)
	grpcLLM := workflow.NewGRPCLLMClient(llmClient)

	wf := &workflow.Workflow{
		LLM:       grpcLLM,
		Schema:    schemaRetriever,
		Cache:     semanticCache,
		Engine:    engine,
		Validator: validatorOpts,
		Rewrite:   rewriteSettings,
	}
	graph := workflow.NewGraph(telemetrySvc, checkpointer)
	wf.Build(graph)

	return &Runtime{
		Config:      cfg,
		RuntimeCfg:  runtimeCfg,
		DB:          dbClient,
		Telemetry:   telemetrySvc,
		MCP:         mcpClient,
		Graph:       graph,
		Interaction: interactionTool,
		Recommender: registry.NewRecommender(dbClient.Client, nil, registry.DefaultOptions()),
		Regressions: evalrunner.NewRegressionStore(dbClient.Client),
		Alerts: slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv("SLACK_BOT_TOKEN"),
			Channel:      os.Getenv("SLACK_REGRESSION_CHANNEL"),
			DashboardURL: GetEnv("AGENT_PUBLIC_URL", "http://localhost:"+runtimeCfg.HTTPPort),
		}),
		Cleanup: cleanup.NewService(cfg.Retention, dbClient.Client),
		backend: backend,
	}, nil
}

// Close tears down every dependency in reverse wiring order, returning
// the first error encountered but attempting every step regardless.
func (rt *Runtime) Close(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(rt.MCP.Close())
	record(rt.backend.Shutdown(ctx))
	record(rt.DB.Close())
	return firstErr
}

func dedupeStrings(vals ...string) []string {
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
