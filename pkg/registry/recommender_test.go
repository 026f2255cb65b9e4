package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/ent/querypair"
)

func pair(id, question, sql, fingerprint string, status querypair.Status, source querypair.Source) *ent.QueryPair {
	return &ent.QueryPair{
		ID:          id,
		Question:    question,
		SQL:         sql,
		Fingerprint: fingerprint,
		Status:      status,
		Source:      source,
		CreatedAt:   time.Now(),
	}
}

func TestFilterValidDropsTombstonedIncompleteAndUnsafe(t *testing.T) {
	r := &Recommender{opts: DefaultOptions()}
	candidates := []scoredPair{
		{row: pair("1", "q1", "SELECT 1", "fp1", querypair.StatusVerified, querypair.SourceVerified)},
		{row: pair("2", "q2", "SELECT 2", "fp2", querypair.StatusTombstoned, querypair.SourceVerified)},
		{row: pair("3", "", "SELECT 3", "fp3", querypair.StatusVerified, querypair.SourceVerified)},
		{row: pair("4", "q4", "DROP TABLE users", "fp4", querypair.StatusVerified, querypair.SourceVerified)},
	}

	kept, dropped := r.filterValid(candidates)
	assert.Equal(t, 3, dropped)
	assert.Len(t, kept, 1)
	assert.Equal(t, "1", kept[0].row.ID)
}

func TestFilterValidDropsStale(t *testing.T) {
	r := &Recommender{opts: Options{StaleMaxAgeDays: 30}}
	old := pair("1", "q1", "SELECT 1", "fp1", querypair.StatusVerified, querypair.SourceVerified)
	old.CreatedAt = time.Now().AddDate(0, 0, -60)

	kept, dropped := r.filterValid([]scoredPair{{row: old}})
	assert.Equal(t, 1, dropped)
	assert.Empty(t, kept)
}

func TestApplyDiversityFillsVerifiedFloorThenCapsPerSource(t *testing.T) {
	r := &Recommender{opts: Options{
		DiversityEnabled:      true,
		DiversityMinVerified:  1,
		DiversityMaxPerSource: 1,
	}}
	candidates := []scoredPair{
		{row: pair("1", "q1", "SELECT 1", "fp1", querypair.StatusSeeded, querypair.SourceSeeded), score: 0.9},
		{row: pair("2", "q2", "SELECT 2", "fp2", querypair.StatusVerified, querypair.SourceVerified), score: 0.8},
		{row: pair("3", "q3", "SELECT 3", "fp3", querypair.StatusSeeded, querypair.SourceSeeded), score: 0.7},
	}

	selected, applied := r.applyDiversity(candidates, 2)
	assert.True(t, applied)
	assert.Len(t, selected, 2)
	assert.Equal(t, "2", selected[0].row.ID, "verified floor fills first")
	assert.Equal(t, "1", selected[1].row.ID, "higher-scored seeded fills remaining capacity")
}

func TestLexicalSimilarityExactMatchIsOne(t *testing.T) {
	assert.Equal(t, 1.0, lexicalSimilarity("how many users", "how many users"))
}

func TestLexicalSimilarityNoOverlapIsZero(t *testing.T) {
	assert.Equal(t, 0.0, lexicalSimilarity("how many users", "total revenue last month"))
}

func TestLexicalSimilarityEmptyInputIsZero(t *testing.T) {
	assert.Equal(t, 0.0, lexicalSimilarity("", "how many users"))
}
