package evalrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExactMatchIgnoresWhitespaceAndCase(t *testing.T) {
	assert.True(t, exactMatch("SELECT id FROM users", "select  id\nfrom USERS"))
}

func TestMetricSuiteV1IdenticalQueriesScorePerfect(t *testing.T) {
	sql := "SELECT id, count(*) FROM orders JOIN users ON orders.user_id = users.id WHERE users.active = true GROUP BY id LIMIT 10"
	scores := metricSuiteV1(sql, sql)
	for name, v := range scores {
		assert.Equal(t, 1.0, v, "subscore %s", name)
	}
	assert.Equal(t, 1.0, weightedComposite(scores))
}

func TestMetricSuiteV1TableOverlapPenalizesDifferentTables(t *testing.T) {
	expected := "SELECT id FROM orders"
	actual := "SELECT id FROM users"
	scores := metricSuiteV1(expected, actual)
	assert.Equal(t, 0.0, scores["table_overlap"])
}

func TestMetricSuiteV1ParseFailureFallsBackToStringCompare(t *testing.T) {
	scores := metricSuiteV1("not valid sql (((", "not valid sql (((")
	for _, v := range scores {
		assert.Equal(t, 1.0, v)
	}
}

func TestLimitMatchExactAndPartial(t *testing.T) {
	ten, twenty := 10, 20
	assert.Equal(t, 1.0, limitMatch(&ten, &ten))
	assert.InDelta(t, 0.5, limitMatch(&ten, &twenty), 0.001)
	assert.Equal(t, 1.0, limitMatch(nil, nil))
	assert.Equal(t, 0.0, limitMatch(&ten, nil))
}

func TestCompositeScoreWeighting(t *testing.T) {
	v1 := map[string]float64{
		"table_overlap": 1, "join_similarity": 1, "aggregation_match": 1,
		"groupby_match": 1, "predicate_similarity": 1, "limit_match": 1,
	}
	v2 := map[string]float64{"numeric_range_proximity": 0, "date_range_proximity": 0, "in_list_overlap": 0, "equality_value_match": 0, "limit_distance": 0}
	assert.InDelta(t, 0.6, compositeScore(v1, v2), 0.001)
}
