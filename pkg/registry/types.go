// Package registry implements the few-shot example recommendation pipeline
// (spec.md §4.8): pin resolution, candidate retrieval, validity filtering,
// ranking, fingerprint dedup, diversity policy, and interaction-role
// fallback, over the QueryPair entity.
package registry

import "regexp"

// RecommendedExample is one entry of a Recommend result.
type RecommendedExample struct {
	Question         string
	SQL              string
	Score            float64
	Source           string
	CanonicalGroupID string
	Metadata         map[string]any
}

// Explanation documents how a Recommend call reached its result, per
// spec.md §4.8 ("emit an explanation object describing pins matched,
// candidates counted per source, filters applied, diversity effects, and
// fallback usage").
type Explanation struct {
	PinsMatched         []string
	CandidatesPerSource map[string]int
	FiltersApplied      []string
	DiversityApplied    bool
	FallbackUsed        bool
}

// Result is the return value of Recommend.
type Result struct {
	Examples    []RecommendedExample
	Explanation Explanation
}

// PinRule is one configured pin: questions matching Pattern (by Mode)
// resolve to the QueryPair whose fingerprint is TargetFingerprint.
type PinRule struct {
	Pattern           string
	Mode              PinMode
	TargetFingerprint string
	Priority          int
}

// PinMode selects how PinRule.Pattern is matched against the incoming
// question.
type PinMode string

const (
	PinModeExact    PinMode = "exact"
	PinModeContains PinMode = "contains"
)

// Options tunes the retrieval, filtering, and diversity stages of the
// pipeline. Defaults mirror the conservative values named in spec.md §4.8.
type Options struct {
	CandidateMultiplier int

	StaleMaxAgeDays int

	MaxQuestionLength int
	SQLBlocklist      []*regexp.Regexp

	DiversityEnabled       bool
	DiversityMinVerified   int
	DiversityMaxPerSource  int

	FallbackEnabled             bool
	FallbackSimilarityThreshold float64
}

// DefaultOptions returns the pipeline's baseline tuning.
func DefaultOptions() Options {
	return Options{
		CandidateMultiplier: 3,
		StaleMaxAgeDays:     90,
		MaxQuestionLength:   2000,
		SQLBlocklist: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|TRUNCATE|ALTER|GRANT)\b`),
		},
		DiversityEnabled:            true,
		DiversityMinVerified:        1,
		DiversityMaxPerSource:       3,
		FallbackEnabled:             true,
		FallbackSimilarityThreshold: 0.6,
	}
}

const statusPinned = "pinned"
const statusInteraction = "interaction"

// statusPriority ranks sources for the stable-sort ranking stage (lower
// value sorts first).
var statusPriority = map[string]int{
	statusPinned:      0,
	"verified":        1,
	"seeded":          2,
	statusInteraction: 3,
}
