package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/ent"
	"github.com/jonkmatsumo/text2sql-sub000/ent/querypair"
)

// Recommender implements the C8 recommendation pipeline over the
// QueryPair entity.
type Recommender struct {
	client *ent.Client
	pins   []PinRule
	opts   Options
}

// NewRecommender constructs a Recommender. pins is the configured pin
// rule set (spec.md §4.8 step 1); opts tunes retrieval, filtering, and
// diversity.
func NewRecommender(client *ent.Client, pins []PinRule, opts Options) *Recommender {
	sort.SliceStable(pins, func(i, j int) bool { return pins[i].Priority > pins[j].Priority })
	return &Recommender{client: client, pins: pins, opts: opts}
}

type scoredPair struct {
	row   *ent.QueryPair
	score float64
}

// Recommend runs the full pipeline for question and returns up to limit
// examples plus the explanation of how they were selected.
func (r *Recommender) Recommend(ctx context.Context, question string, tenantID any, limit int, enableFallback bool) (Result, error) {
	if limit <= 0 {
		limit = 5
	}
	explanation := Explanation{CandidatesPerSource: map[string]int{}}

	var examples []RecommendedExample
	seenFingerprints := make(map[string]bool)

	// Step 1: pin resolution.
	pinned, pinNames, err := r.resolvePins(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("resolve pins: %w", err)
	}
	explanation.PinsMatched = pinNames
	for _, p := range pinned {
		if seenFingerprints[p.Fingerprint] {
			continue
		}
		seenFingerprints[p.Fingerprint] = true
		examples = append(examples, toExample(p, 1.0, statusPinned))
	}

	// Step 2: candidate retrieval, verified and seeded separately.
	multiplier := r.opts.CandidateMultiplier
	if multiplier <= 0 {
		multiplier = 3
	}
	verified, err := r.retrieveCandidates(ctx, question, querypair.StatusVerified, limit*multiplier)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve verified candidates: %w", err)
	}
	seeded, err := r.retrieveCandidates(ctx, question, querypair.StatusSeeded, limit*multiplier)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve seeded candidates: %w", err)
	}
	explanation.CandidatesPerSource["verified"] = len(verified)
	explanation.CandidatesPerSource["seeded"] = len(seeded)

	// Step 3: validity filtering.
	var filtersApplied []string
	verified, n := r.filterValid(verified)
	if n > 0 {
		filtersApplied = append(filtersApplied, fmt.Sprintf("verified: dropped %d invalid", n))
	}
	seeded, n = r.filterValid(seeded)
	if n > 0 {
		filtersApplied = append(filtersApplied, fmt.Sprintf("seeded: dropped %d invalid", n))
	}
	explanation.FiltersApplied = filtersApplied

	// Step 4: ranking. Candidates within each status already arrive ordered
	// by similarity score (retrieveCandidates sorts descending); concatenate
	// by status priority for a stable overall rank.
	ranked := append(append([]scoredPair{}, verified...), seeded...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return statusPriority[string(ranked[i].row.Status)] < statusPriority[string(ranked[j].row.Status)]
	})

	// Step 5: fingerprint dedup.
	var deduped []scoredPair
	for _, c := range ranked {
		if seenFingerprints[c.row.Fingerprint] {
			continue
		}
		seenFingerprints[c.row.Fingerprint] = true
		deduped = append(deduped, c)
	}

	// Step 6: diversity policy.
	remaining := limit - len(examples)
	if remaining > 0 {
		selected, diversityApplied := r.applyDiversity(deduped, remaining)
		explanation.DiversityApplied = diversityApplied
		for _, c := range selected {
			examples = append(examples, toExample(c.row, c.score, string(c.row.Source)))
		}
	}

	// Step 7: interaction-role fallback.
	if len(examples) < limit && enableFallback && r.opts.FallbackEnabled {
		fallback, err := r.retrieveFallback(ctx, question, limit-len(examples), seenFingerprints)
		if err != nil {
			return Result{}, fmt.Errorf("retrieve fallback candidates: %w", err)
		}
		if len(fallback) > 0 {
			explanation.FallbackUsed = true
			explanation.CandidatesPerSource[statusInteraction] = len(fallback)
			for _, c := range fallback {
				examples = append(examples, toExample(c.row, c.score, statusInteraction))
			}
		}
	}

	if len(examples) > limit {
		examples = examples[:limit]
	}
	return Result{Examples: examples, Explanation: explanation}, nil
}

func (r *Recommender) resolvePins(ctx context.Context, question string) ([]*ent.QueryPair, []string, error) {
	normalized := strings.ToLower(strings.TrimSpace(question))
	var pinned []*ent.QueryPair
	var names []string
	for _, rule := range r.pins {
		matched := false
		switch rule.Mode {
		case PinModeExact:
			matched = normalized == strings.ToLower(strings.TrimSpace(rule.Pattern))
		case PinModeContains:
			matched = strings.Contains(normalized, strings.ToLower(rule.Pattern))
		}
		if !matched {
			continue
		}
		row, err := r.client.QueryPair.Query().
			Where(querypair.FingerprintEQ(rule.TargetFingerprint)).
			Only(ctx)
		if err != nil {
			if ent.IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		if row.Status == querypair.StatusTombstoned {
			continue
		}
		pinned = append(pinned, row)
		names = append(names, rule.Pattern)
	}
	return pinned, names, nil
}

func (r *Recommender) retrieveCandidates(ctx context.Context, question string, status querypair.Status, max int) ([]scoredPair, error) {
	rows, err := r.client.QueryPair.Query().
		Where(querypair.StatusEQ(status)).
		Limit(max).
		All(ctx)
	if err != nil {
		return nil, err
	}
	scored := make([]scoredPair, 0, len(rows))
	for _, row := range rows {
		scored = append(scored, scoredPair{row: row, score: lexicalSimilarity(question, row.Question)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	return scored, nil
}

func (r *Recommender) retrieveFallback(ctx context.Context, question string, max int, seenFingerprints map[string]bool) ([]scoredPair, error) {
	rows, err := r.client.QueryPair.Query().
		Where(querypair.SourceEQ(querypair.SourceInteraction)).
		All(ctx)
	if err != nil {
		return nil, err
	}
	var scored []scoredPair
	threshold := r.opts.FallbackSimilarityThreshold
	for _, row := range rows {
		if seenFingerprints[row.Fingerprint] {
			continue
		}
		score := lexicalSimilarity(question, row.Question)
		if score < threshold {
			continue
		}
		scored = append(scored, scoredPair{row: row, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	for _, s := range scored {
		seenFingerprints[s.row.Fingerprint] = true
	}
	if len(scored) > max {
		scored = scored[:max]
	}
	return scored, nil
}

// filterValid drops tombstoned, incomplete, stale, and safety-violating
// candidates, returning the surviving set and the number dropped.
func (r *Recommender) filterValid(candidates []scoredPair) ([]scoredPair, int) {
	cutoff := time.Time{}
	if r.opts.StaleMaxAgeDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -r.opts.StaleMaxAgeDays)
	}

	var kept []scoredPair
	dropped := 0
	for _, c := range candidates {
		row := c.row
		if row.Status == querypair.StatusTombstoned {
			dropped++
			continue
		}
		if row.Question == "" || row.SQL == "" || row.Fingerprint == "" {
			dropped++
			continue
		}
		if !cutoff.IsZero() {
			last := row.CreatedAt
			if row.LastUsedAt != nil {
				last = *row.LastUsedAt
			}
			if last.Before(cutoff) {
				dropped++
				continue
			}
		}
		if r.opts.MaxQuestionLength > 0 && len(row.Question) > r.opts.MaxQuestionLength {
			dropped++
			continue
		}
		violatesSafety := false
		for _, pattern := range r.opts.SQLBlocklist {
			if pattern.MatchString(row.SQL) {
				violatesSafety = true
				break
			}
		}
		if violatesSafety {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

// applyDiversity runs the two-pass diversity policy (spec.md §4.8 step 6):
// pass A fills a verified floor, pass B fills the rest respecting a
// per-source cap.
func (r *Recommender) applyDiversity(candidates []scoredPair, capacity int) ([]scoredPair, bool) {
	if !r.opts.DiversityEnabled {
		if len(candidates) > capacity {
			candidates = candidates[:capacity]
		}
		return candidates, false
	}

	var selected []scoredPair
	verifiedCount := 0
	used := make(map[int]bool)

	for i, c := range candidates {
		if len(selected) >= capacity || verifiedCount >= r.opts.DiversityMinVerified {
			break
		}
		if string(c.row.Status) != "verified" {
			continue
		}
		selected = append(selected, c)
		used[i] = true
		verifiedCount++
	}

	perSource := map[string]int{}
	for _, c := range selected {
		perSource[string(c.row.Source)]++
	}
	maxPerSource := r.opts.DiversityMaxPerSource
	for i, c := range candidates {
		if len(selected) >= capacity {
			break
		}
		if used[i] {
			continue
		}
		source := string(c.row.Source)
		if maxPerSource > 0 && perSource[source] >= maxPerSource {
			continue
		}
		selected = append(selected, c)
		perSource[source]++
	}
	return selected, true
}

func toExample(row *ent.QueryPair, score float64, source string) RecommendedExample {
	groupID := ""
	if row.CanonicalGroupID != nil {
		groupID = *row.CanonicalGroupID
	}
	return RecommendedExample{
		Question:         row.Question,
		SQL:              row.SQL,
		Score:            score,
		Source:           source,
		CanonicalGroupID: groupID,
		Metadata: map[string]any{
			"query_pair_id": row.ID,
			"status":        string(row.Status),
		},
	}
}

// lexicalSimilarity is a Jaccard token-overlap score over lowercased
// whitespace-split words, used in place of a real embedding similarity
// service (none exists in this deployment — see EntSemanticCache's
// equivalent fallback-to-exact-match note).
func lexicalSimilarity(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	intersection := 0
	for t := range tokensA {
		if tokensB[t] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		set[word] = true
	}
	return set
}
