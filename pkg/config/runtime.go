package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
)

// RuntimeConfig holds the agent runtime's environment-driven tunables
// (spec.md §6 "Environment-driven configuration"). Unlike the YAML-backed
// Config above, these values are read directly from the process
// environment at startup — there is no equivalent YAML surface for them
// in the teacher's configuration model, since they tune components
// (C1-C5) the teacher never had.
type RuntimeConfig struct {
	OTELExporterEndpoint string
	OTELExporterProtocol string
	OTELServiceName      string

	AutoPagination       bool
	AutoPaginationMaxPages int
	AutoPaginationMaxRows  int

	MaxJoinComplexity      int
	SchemaBindingValidation bool
	SchemaBindingSoftMode   bool
	ColumnAllowlistMode     string
	BlockSensitiveColumns   bool

	TenantRewriteEnabled         bool
	TenantRewriteStrictMode      bool
	TenantRewriteMaxTargets      int
	TenantRewriteMaxParams       int
	MaxSQLASTNodes               int
	TenantRewriteAssertInvariants bool

	PersistenceFailOpen bool

	PaginationDisallowFederatedOffset bool

	ToolResponseLegacyShim bool
	SchemaDriftAutoRefresh bool

	QueryTargetProvider string
	QueryTargetBackend  string

	LogFormat string

	HTTPPort string

	DeadlineMargin time.Duration
}

// DefaultRuntimeConfig returns the conservative defaults documented
// throughout SPEC_FULL.md §9/§10.3 — auto-pagination and tenant rewrite on,
// strict mode and legacy shims off.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		OTELServiceName: "sqlagent",

		AutoPagination:         true,
		AutoPaginationMaxPages: 50,
		AutoPaginationMaxRows:  10000,

		MaxJoinComplexity:       6,
		SchemaBindingValidation: true,
		SchemaBindingSoftMode:   false,
		ColumnAllowlistMode:     "off",
		BlockSensitiveColumns:   true,

		TenantRewriteEnabled:          true,
		TenantRewriteStrictMode:       true,
		TenantRewriteMaxTargets:       64,
		TenantRewriteMaxParams:        64,
		MaxSQLASTNodes:                4096,
		TenantRewriteAssertInvariants: false,

		PersistenceFailOpen: false,

		PaginationDisallowFederatedOffset: true,

		ToolResponseLegacyShim: false,
		SchemaDriftAutoRefresh: false,

		QueryTargetProvider: "postgres",

		LogFormat: "text",
		HTTPPort:  "8080",

		DeadlineMargin: 500 * time.Millisecond,
	}
}

// LoadRuntimeConfigFromEnv reads every variable named in spec.md §6 into a
// RuntimeConfig, then merges it over DefaultRuntimeConfig using the same
// mergo.WithOverride strategy pkg/config's YAML loader uses for queue
// settings — an explicitly-set env var wins, an unset one keeps the
// default. godotenv.Load against <config-dir>/.env (done in main before
// this call) has already seeded os.Environ().
func LoadRuntimeConfigFromEnv() (*RuntimeConfig, error) {
	cfg := RuntimeConfig{
		OTELExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELExporterProtocol: os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
		OTELServiceName:      os.Getenv("OTEL_SERVICE_NAME"),

		AutoPagination:         envBool("AGENT_AUTO_PAGINATION"),
		AutoPaginationMaxPages: envInt("AGENT_AUTO_PAGINATION_MAX_PAGES"),
		AutoPaginationMaxRows:  envInt("AGENT_AUTO_PAGINATION_MAX_ROWS"),

		MaxJoinComplexity:       envInt("AGENT_MAX_JOIN_COMPLEXITY"),
		SchemaBindingValidation: envBool("AGENT_SCHEMA_BINDING_VALIDATION"),
		SchemaBindingSoftMode:   envBool("AGENT_SCHEMA_BINDING_SOFT_MODE"),
		ColumnAllowlistMode:     os.Getenv("AGENT_COLUMN_ALLOWLIST_MODE"),
		BlockSensitiveColumns:   envBool("AGENT_BLOCK_SENSITIVE_COLUMNS"),

		TenantRewriteEnabled:          envBool("TENANT_REWRITE_ENABLED"),
		TenantRewriteStrictMode:       envBool("TENANT_REWRITE_STRICT_MODE"),
		TenantRewriteMaxTargets:       envInt("TENANT_REWRITE_MAX_TARGETS"),
		TenantRewriteMaxParams:        envInt("TENANT_REWRITE_MAX_PARAMS"),
		MaxSQLASTNodes:                envInt("MAX_SQL_AST_NODES"),
		TenantRewriteAssertInvariants: envBool("TENANT_REWRITE_ASSERT_INVARIANTS"),

		PersistenceFailOpen: envBool("PERSISTENCE_FAIL_OPEN"),

		PaginationDisallowFederatedOffset: envBool("PAGINATION_DISALLOW_FEDERATED_OFFSET"),

		ToolResponseLegacyShim: envBool("AGENT_TOOL_RESPONSE_LEGACY_SHIM"),
		SchemaDriftAutoRefresh: envBool("AGENT_SCHEMA_DRIFT_AUTO_REFRESH"),

		QueryTargetProvider: firstNonEmpty(os.Getenv("QUERY_TARGET_PROVIDER"), os.Getenv("QUERY_TARGET_BACKEND")),
		QueryTargetBackend:  os.Getenv("QUERY_TARGET_BACKEND"),

		LogFormat: os.Getenv("LOG_FORMAT"),
		HTTPPort:  os.Getenv("HTTP_PORT"),
	}

	merged := DefaultRuntimeConfig()
	if err := mergo.Merge(&merged, cfg, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return nil, err
	}
	return &merged, nil
}

func envBool(key string) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return b
}

func envInt(key string) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
