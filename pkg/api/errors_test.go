package api

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/execengine"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/tenantrewrite"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
	}{
		{
			name: "tenant rewrite error maps to 400",
			err: &tenantrewrite.RewriteError{
				Kind: tenantrewrite.KindUnsupportedShape,
			},
			expectCode: http.StatusBadRequest,
		},
		{
			name: "security policy violation maps to 403",
			err: &execengine.ExecError{
				Category: execengine.CategorySecurityPolicyViolation,
				Message:  "blocked",
			},
			expectCode: http.StatusForbidden,
		},
		{
			name: "timeout maps to 504",
			err: &execengine.ExecError{
				Category: execengine.CategoryTimeout,
				Message:  "deadline exceeded",
			},
			expectCode: http.StatusGatewayTimeout,
		},
		{
			name: "other exec error maps to 502",
			err: &execengine.ExecError{
				Category: execengine.CategoryTransient,
				Message:  "provider unavailable",
			},
			expectCode: http.StatusBadGateway,
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
		})
	}
}
