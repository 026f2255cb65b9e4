// Package sqlvalidator implements the AST-based SQL policy engine: root-
// node policy, forbidden-construct rejection, table/column allowlisting,
// join-complexity limits, sensitive-column guards, and lineage metadata
// extraction.
package sqlvalidator

// ViolationType enumerates the closed set of security violations the
// validator can report.
type ViolationType string

const (
	ViolationForbiddenCommand  ViolationType = "FORBIDDEN_COMMAND"
	ViolationRestrictedTable   ViolationType = "RESTRICTED_TABLE"
	ViolationTableNotAllowed   ViolationType = "TABLE_NOT_ALLOWED"
	ViolationColumnNotAllowed  ViolationType = "COLUMN_NOT_ALLOWED"
	ViolationComplexityLimit   ViolationType = "COMPLEXITY_LIMIT"
	ViolationSensitiveColumn   ViolationType = "SENSITIVE_COLUMN"
	ViolationSyntaxError       ViolationType = "SYNTAX_ERROR"
	ViolationMultipleStatement ViolationType = "MULTIPLE_STATEMENTS"
)

// SecurityViolation is a single fatal or warned policy finding.
type SecurityViolation struct {
	Type    ViolationType
	Message string
	Details map[string]any
}

// Mode controls how column allowlist / sensitive-column checks behave.
type Mode string

const (
	ModeOff   Mode = "off"
	ModeWarn  Mode = "warn"
	ModeBlock Mode = "block"
)

// SQLMetadata is lineage and shape metadata extracted regardless of
// validation outcome, to support audit even on failure.
type SQLMetadata struct {
	TableLineage      []string
	ColumnUsage       []string
	JoinComplexity    int
	HasAggregation    bool
	HasSubquery       bool
	HasWindowFunction bool
	NormalizedSQL     string
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	IsValid    bool
	Violations []SecurityViolation
	Warnings   []SecurityViolation
	Metadata   SQLMetadata
}

// Options configures a single Validate call.
type Options struct {
	Dialect           string
	AllowedTables     map[string]bool // nil = no table allowlist enforced
	AllowedColumns    map[string]bool // nil = no column allowlist enforced
	ColumnMode        Mode            // default ModeOff
	SensitiveColumns  map[string]bool
	SensitiveMode     Mode // default ModeWarn
	MaxJoinComplexity int  // 0 = unbounded
}

// restrictedTables mirrors the original's hard-coded restricted-table set.
var restrictedTables = map[string]bool{
	"payroll":      true,
	"credentials":  true,
	"audit_logs":   true,
	"secrets":      true,
	"api_keys":     true,
	"password_reset_tokens": true,
}

// restrictedPrefixes mirrors the original's system-schema prefix guard.
var restrictedPrefixes = []string{"pg_", "information_schema."}
