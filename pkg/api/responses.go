package api

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	Question  string `json:"question"`
	TenantID  int64  `json:"tenant_id"`
	SessionID string `json:"session_id"`
}

// QueryResponse is returned by POST /api/v1/query.
type QueryResponse struct {
	ThreadID        string           `json:"thread_id"`
	Answer          string           `json:"answer,omitempty"`
	SQL             string           `json:"sql,omitempty"`
	ClarifyQuestion string           `json:"clarify_question,omitempty"`
	Error           string           `json:"error,omitempty"`
	ErrorCategory   string           `json:"error_category,omitempty"`
	Chart           *ChartResponse   `json:"chart,omitempty"`
	RowsReturned    int              `json:"rows_returned,omitempty"`
}

// ChartResponse mirrors workflow.ChartSuggestion for the wire format.
type ChartResponse struct {
	Kind    string   `json:"kind"`
	XField  string   `json:"x_field"`
	YFields []string `json:"y_fields"`
	Reason  string   `json:"reason"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
