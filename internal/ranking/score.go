// Package ranking contains the pure scoring and selection logic applied to
// memory similarity-search results before they are assembled into an agent's
// context window. No function in this package performs I/O; everything is
// deterministic given identical inputs and a caller-supplied clock.
package ranking

import (
	"time"

	"github.com/cgk-platform/agentcore/internal/models"
)

// Type weights are fixed priors: instructive memories (how to behave) outrank
// incidental facts when similarity ties are close.
var typeWeights = map[models.MemoryType]float64{
	models.MemoryTypePolicy:         1.2,
	models.MemoryTypeProcedure:      1.1,
	models.MemoryTypePreference:     1.0,
	models.MemoryTypeTeamMember:     0.95,
	models.MemoryTypeCreator:        0.95,
	models.MemoryTypeProjectPattern: 0.9,
	models.MemoryTypeFact:           0.85,
}

// defaultTypeWeight applies to unrecognized memory types.
const defaultTypeWeight = 1.0

// Recency boost parameters: a memory used within the last 7 days earns the
// full +10%; the boost decays linearly to zero at day 70. A nil lastUsedAt
// earns no boost and no penalty.
const (
	recencyBoostMax      = 0.10
	recencyFullBoostDays = 7.0
	recencyZeroBoostDays = 70.0
)

// ScoreOptions tunes relevance scoring.
type ScoreOptions struct {
	// Now anchors recency calculations. Zero means time.Now().
	Now time.Time
	// DisableRecencyBoost turns off the recency multiplier entirely.
	DisableRecencyBoost bool
}

// TypeWeight returns the fixed prior for a memory type.
func TypeWeight(t models.MemoryType) float64 {
	if w, ok := typeWeights[t]; ok {
		return w
	}
	return defaultTypeWeight
}

// CalculateRelevanceScore returns the composite relevance of one search
// result, clamped to [0, 1]:
//
//	similarity x confidence x importance x typeWeight x (1 + recencyBoost)
func CalculateRelevanceScore(m models.MemorySearchResult, opts ScoreOptions) float64 {
	return clamp01(compositeScore(m, opts))
}

// compositeScore is the unclamped composite used for ordering. Type weights
// above 1.0 intentionally push strong policy/procedure hits past 1.0 so they
// always order ahead of equally-similar incidental memories.
func compositeScore(m models.MemorySearchResult, opts ScoreOptions) float64 {
	score := m.Similarity * m.Confidence * m.Importance * TypeWeight(m.MemoryType)
	if !opts.DisableRecencyBoost {
		score *= 1 + recencyBoost(m.LastUsedAt, opts.Now)
	}
	return score
}

func recencyBoost(lastUsedAt *time.Time, now time.Time) float64 {
	if lastUsedAt == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now()
	}

	days := now.Sub(*lastUsedAt).Hours() / 24
	switch {
	case days < 0:
		// Clock skew; treat a future lastUsedAt as just-used.
		return recencyBoostMax
	case days <= recencyFullBoostDays:
		return recencyBoostMax
	case days >= recencyZeroBoostDays:
		return 0
	default:
		return recencyBoostMax * (recencyZeroBoostDays - days) / (recencyZeroBoostDays - recencyFullBoostDays)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
