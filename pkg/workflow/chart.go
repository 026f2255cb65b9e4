package workflow

import (
	"fmt"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/execengine"
)

const (
	minChartRows = 2
	maxChartRows = 500
)

var numericColumnTypes = map[string]bool{
	"int": true, "integer": true, "bigint": true, "smallint": true,
	"float": true, "double": true, "numeric": true, "decimal": true, "real": true,
}

var temporalColumnTypes = map[string]bool{
	"date": true, "timestamp": true, "timestamptz": true, "time": true,
}

// suggestChart implements the visualize node's chart-shape detection
// (SPEC_FULL.md §4.6.1): a result is chart-shaped when it has at least one
// numeric column, at least one categorical or temporal column, and its row
// count falls in [minChartRows, maxChartRows]. It never returns an error
// under normal inputs; the error return exists so the caller can record a
// visualization_error event without failing the run, matching the
// original's fail-soft contract.
func suggestChart(result *execengine.Result) (*ChartSuggestion, error) {
	if result == nil {
		return nil, nil
	}
	rows := result.RowsReturned
	if rows < minChartRows || rows > maxChartRows {
		return nil, nil
	}

	var numeric, categorical []string
	for _, col := range result.Columns {
		t := strings.ToLower(col.Type)
		switch {
		case numericColumnTypes[t]:
			numeric = append(numeric, col.Name)
		case temporalColumnTypes[t]:
			categorical = append(categorical, col.Name)
		default:
			categorical = append(categorical, col.Name)
		}
	}
	if len(numeric) == 0 || len(categorical) == 0 {
		return nil, nil
	}

	kind := "bar"
	xField := categorical[0]
	for _, t := range categorical {
		if temporalColumnTypes[strings.ToLower(columnType(result.Columns, t))] {
			kind = "line"
			xField = t
			break
		}
	}

	return &ChartSuggestion{
		Kind:    kind,
		XField:  xField,
		YFields: numeric,
		Reason:  fmt.Sprintf("%d rows with %d numeric and %d categorical/temporal column(s)", rows, len(numeric), len(categorical)),
	}, nil
}

func columnType(cols []execengine.ColumnMeta, name string) string {
	for _, c := range cols {
		if c.Name == name {
			return c.Type
		}
	}
	return ""
}
