package evalrunner

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// exactMatch compares canonicalized AST text; if either side fails to
// parse, it falls back to whitespace-normalized case-folded string
// compare, per spec.md §4.7.
func exactMatch(expected, actual string) bool {
	expStmt, expErr := sqlast.Parse(expected)
	actStmt, actErr := sqlast.Parse(actual)
	if expErr == nil && actErr == nil {
		return sqlast.Print(expStmt) == sqlast.Print(actStmt)
	}
	return normalizeWhitespace(expected) == normalizeWhitespace(actual)
}

func normalizeWhitespace(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// metricSuiteV1 computes the six structural subscores. When either SQL
// fails to parse, every subscore takes value 1 iff the strings are an
// exact match, else 0 — the parse-failure fallback named in spec.md §4.7.
func metricSuiteV1(expected, actual string) map[string]float64 {
	expStmt, expErr := sqlast.Parse(expected)
	actStmt, actErr := sqlast.Parse(actual)
	if expErr != nil || actErr != nil {
		fallback := 0.0
		if normalizeWhitespace(expected) == normalizeWhitespace(actual) {
			fallback = 1.0
		}
		scores := make(map[string]float64, len(metricV1Weights))
		for name := range metricV1Weights {
			scores[name] = fallback
		}
		return scores
	}

	expFeat := extractFeatures(expStmt)
	actFeat := extractFeatures(actStmt)

	return map[string]float64{
		"table_overlap":        jaccard(expFeat.tables, actFeat.tables),
		"join_similarity":       joinSimilarity(expFeat.joinCount, actFeat.joinCount),
		"aggregation_match":    boolMatch(expFeat.hasAggregation, actFeat.hasAggregation),
		"groupby_match":        boolMatch(expFeat.hasGroupBy, actFeat.hasGroupBy),
		"predicate_similarity": jaccard(expFeat.predicateTypes, actFeat.predicateTypes),
		"limit_match":          limitMatch(expFeat.limit, actFeat.limit),
	}
}

// weightedComposite sums subscores by their configured weight.
func weightedComposite(scores map[string]float64) float64 {
	total := 0.0
	for name, weight := range metricV1Weights {
		total += scores[name] * weight
	}
	return total
}

// metricSuiteV2 computes value-aware subscores on top of the structural
// ones: numeric range proximity, date-range proximity, set-overlap
// Jaccard on IN lists, equality value match, and LIMIT distance. Every
// subscore defaults to 1 if both sides have no instance of that
// construct (nothing to compare is a match), matching MetricSuiteV1's
// aggregation_match/groupby_match "both absent is a match" convention.
func metricSuiteV2(expected, actual string) map[string]float64 {
	expStmt, expErr := sqlast.Parse(expected)
	actStmt, actErr := sqlast.Parse(actual)
	if expErr != nil || actErr != nil {
		fallback := 0.0
		if normalizeWhitespace(expected) == normalizeWhitespace(actual) {
			fallback = 1.0
		}
		return map[string]float64{
			"numeric_range_proximity": fallback,
			"date_range_proximity":    fallback,
			"in_list_overlap":         fallback,
			"equality_value_match":    fallback,
			"limit_distance":          fallback,
		}
	}

	expFeat := extractFeatures(expStmt)
	actFeat := extractFeatures(actStmt)

	return map[string]float64{
		"numeric_range_proximity": rangeProximity(expFeat.numericRanges, actFeat.numericRanges),
		"date_range_proximity":    rangeProximity(expFeat.dateRanges, actFeat.dateRanges),
		"in_list_overlap":         jaccard(expFeat.inListValues, actFeat.inListValues),
		"equality_value_match":    jaccard(expFeat.equalityValues, actFeat.equalityValues),
		"limit_distance":          limitMatch(expFeat.limit, actFeat.limit),
	}
}

func averageScore(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range scores {
		total += v
	}
	return total / float64(len(scores))
}

// compositeScore = 0.6*MetricSuiteV1 + 0.4*MetricSuiteV2, per spec.md §4.7.
func compositeScore(v1, v2 map[string]float64) float64 {
	return 0.6*weightedComposite(v1) + 0.4*averageScore(v2)
}

type sqlFeatures struct {
	tables         map[string]bool
	joinCount      int
	hasAggregation bool
	hasGroupBy     bool
	predicateTypes map[string]bool
	limit          (*int)
	numericRanges  map[string]bool
	dateRanges     map[string]bool
	inListValues   map[string]bool
	equalityValues map[string]bool
}

func extractFeatures(stmt *sqlast.Statement) sqlFeatures {
	feat := sqlFeatures{
		tables:         map[string]bool{},
		predicateTypes: map[string]bool{},
		numericRanges:  map[string]bool{},
		dateRanges:     map[string]bool{},
		inListValues:   map[string]bool{},
		equalityValues: map[string]bool{},
	}
	cteNames := map[string]bool{}
	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			cteNames[strings.ToLower(cte.Name)] = true
		}
	}

	for _, sel := range sqlast.FindSelects(stmt) {
		for _, f := range sel.From {
			if f.Table != "" && !cteNames[strings.ToLower(f.Table)] {
				feat.tables[strings.ToLower(f.Table)] = true
			}
			if f.Join != nil {
				feat.joinCount++
			}
		}
		if sqlast.ContainsAggregate(sel) {
			feat.hasAggregation = true
		}
		if len(sel.GroupBy) > 0 {
			feat.hasGroupBy = true
		}
		if sel.Limit != nil {
			if lit, ok := sel.Limit.(*sqlast.Literal); ok && lit.Kind == sqlast.LitNumber {
				if n, err := strconv.Atoi(lit.Text); err == nil {
					feat.limit = &n
				}
			}
		}
		if sel.Where != nil {
			walkPredicates(sel.Where, &feat)
		}
	}
	return feat
}

func walkPredicates(e sqlast.Expr, feat *sqlFeatures) {
	sqlast.Walk(e, func(n sqlast.Node) bool {
		switch v := n.(type) {
		case *sqlast.BinaryExpr:
			switch strings.ToUpper(v.Op) {
			case "=":
				feat.predicateTypes["equality"] = true
				if lit, ok := v.Right.(*sqlast.Literal); ok {
					feat.equalityValues[lit.Text] = true
				}
			case "<", "<=", ">", ">=":
				feat.predicateTypes["range"] = true
				recordRange(v, feat)
			case "LIKE", "ILIKE":
				feat.predicateTypes["like"] = true
			}
		case *sqlast.BetweenExpr:
			feat.predicateTypes["range"] = true
			if lo, ok := v.Lo.(*sqlast.Literal); ok {
				if hi, ok := v.Hi.(*sqlast.Literal); ok {
					classifyRange(lo.Text, hi.Text, feat)
				}
			}
		case *sqlast.InExpr:
			feat.predicateTypes["in"] = true
			for _, item := range v.List {
				if lit, ok := item.(*sqlast.Literal); ok {
					feat.inListValues[lit.Text] = true
				}
			}
		case *sqlast.IsNullExpr:
			feat.predicateTypes["null_check"] = true
		}
		return true
	})
}

func recordRange(b *sqlast.BinaryExpr, feat *sqlFeatures) {
	lit, ok := b.Right.(*sqlast.Literal)
	if !ok {
		return
	}
	classifyRange(lit.Text, lit.Text, feat)
}

func classifyRange(a, b string, feat *sqlFeatures) {
	if looksLikeDate(a) || looksLikeDate(b) {
		feat.dateRanges[a+".."+b] = true
		return
	}
	feat.numericRanges[a+".."+b] = true
}

func looksLikeDate(s string) bool {
	return strings.Contains(s, "-") && len(strings.TrimFunc(s, func(r rune) bool {
		return r == '-' || (r >= '0' && r <= '9')
	})) == 0
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func boolMatch(a, b bool) float64 {
	if a == b {
		return 1
	}
	return 0
}

func joinSimilarity(a, b int) float64 {
	maxJoins := a
	if b > maxJoins {
		maxJoins = b
	}
	if maxJoins == 0 {
		return 1
	}
	delta := a - b
	if delta < 0 {
		delta = -delta
	}
	score := 1 - float64(delta)/float64(maxJoins)
	if score < 0 {
		return 0
	}
	return score
}

func limitMatch(a, b *int) float64 {
	if a == nil && b == nil {
		return 1
	}
	if a == nil || b == nil {
		return 0
	}
	if *a == *b {
		return 1
	}
	maxLimit := *a
	if *b > maxLimit {
		maxLimit = *b
	}
	if maxLimit == 0 {
		return 1
	}
	delta := *a - *b
	if delta < 0 {
		delta = -delta
	}
	score := 1 - float64(delta)/float64(maxLimit)
	if score < 0 {
		return 0
	}
	return score
}

func rangeProximity(a, b map[string]bool) float64 {
	return jaccard(a, b)
}

func percentile95(durations []int64) int64 {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]int64{}, durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
