package ranking

import (
	"sort"

	"github.com/cgk-platform/agentcore/internal/models"
)

// Diversification defaults. These values back the selection guarantees the
// context builder relies on; change them only together with its tests.
const (
	DefaultMaxPerType    = 5
	DefaultMaxPerSubject = 3
	DefaultLimit         = 20
)

// TypePriority is the fixed presentation order: guidance-type memories are
// always surfaced as a block before incidental ones, regardless of individual
// scores.
var TypePriority = []models.MemoryType{
	models.MemoryTypePolicy,
	models.MemoryTypeProcedure,
	models.MemoryTypePreference,
	models.MemoryTypeTeamMember,
	models.MemoryTypeCreator,
	models.MemoryTypeProjectPattern,
	models.MemoryTypeFact,
}

// RankOptions tunes RankMemories.
type RankOptions struct {
	ScoreOptions
	// MinScore drops candidates scoring below it. Default 0 keeps everything.
	MinScore float64
}

// RankMemories maps every candidate through the composite scorer, drops any
// below MinScore, and sorts descending by score. The annotated RelevanceScore
// carries the raw composite (a 0.9-similarity policy hit scores 1.08) so
// downstream consumers keep the full ordering resolution; callers that need a
// normalized value use CalculateRelevanceScore directly.
func RankMemories(memories []models.MemorySearchResult, opts RankOptions) []models.MemorySearchResult {
	ranked := make([]models.MemorySearchResult, 0, len(memories))
	for _, m := range memories {
		m.RelevanceScore = compositeScore(m, opts.ScoreOptions)
		if m.RelevanceScore < opts.MinScore {
			continue
		}
		ranked = append(ranked, m)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	return ranked
}

// DiversifyOptions tunes DiversifyMemories. Zero values take the defaults.
type DiversifyOptions struct {
	MaxPerType    int
	MaxPerSubject int
	Limit         int
}

func (o DiversifyOptions) withDefaults() DiversifyOptions {
	if o.MaxPerType <= 0 {
		o.MaxPerType = DefaultMaxPerType
	}
	if o.MaxPerSubject <= 0 {
		o.MaxPerSubject = DefaultMaxPerSubject
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// DiversifyMemories greedily selects from an already-ranked list, admitting a
// memory only while its type is under MaxPerType and its (subjectType,
// subjectID) pair is under MaxPerSubject, stopping at Limit selections.
// Subject-less memories are exempt from the per-subject cap: global facts
// are not made artificially scarce. This prevents one highly-similar but
// narrow cluster from crowding out policy/procedure guidance.
func DiversifyMemories(ranked []models.MemorySearchResult, opts DiversifyOptions) []models.MemorySearchResult {
	opts = opts.withDefaults()

	typeCounts := make(map[models.MemoryType]int)
	subjectCounts := make(map[string]int)

	selected := make([]models.MemorySearchResult, 0, opts.Limit)
	for _, m := range ranked {
		if len(selected) >= opts.Limit {
			break
		}
		if typeCounts[m.MemoryType] >= opts.MaxPerType {
			continue
		}

		subjectKey := ""
		if m.HasSubject() {
			subjectKey = m.SubjectType + "\x00" + m.SubjectID
			if subjectCounts[subjectKey] >= opts.MaxPerSubject {
				continue
			}
		}

		selected = append(selected, m)
		typeCounts[m.MemoryType]++
		if subjectKey != "" {
			subjectCounts[subjectKey]++
		}
	}
	return selected
}

// ThresholdOptions are hard cutoffs for FilterByThresholds.
type ThresholdOptions struct {
	MinSimilarity float64
	MinConfidence float64
	MinImportance float64
}

// FilterByThresholds is an independent pre-filter usable before or instead of
// ranking, for callers that want hard cutoffs rather than soft scoring.
func FilterByThresholds(memories []models.MemorySearchResult, opts ThresholdOptions) []models.MemorySearchResult {
	kept := make([]models.MemorySearchResult, 0, len(memories))
	for _, m := range memories {
		if m.Similarity < opts.MinSimilarity {
			continue
		}
		if m.Confidence < opts.MinConfidence {
			continue
		}
		if m.Importance < opts.MinImportance {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// MemoryGroup is a presentation block of one memory type.
type MemoryGroup struct {
	Type     models.MemoryType           `json:"type"`
	Memories []models.MemorySearchResult `json:"memories"`
}

// GroupByType buckets a selection by memory type, preserving input order
// within each bucket.
func GroupByType(memories []models.MemorySearchResult) map[models.MemoryType][]models.MemorySearchResult {
	groups := make(map[models.MemoryType][]models.MemorySearchResult)
	for _, m := range memories {
		groups[m.MemoryType] = append(groups[m.MemoryType], m)
	}
	return groups
}

// SortGroupsByPriority orders groups by the fixed TypePriority list. Types
// outside the list (future additions) sort after the known ones, in map
// iteration-independent order by type name.
func SortGroupsByPriority(groups map[models.MemoryType][]models.MemorySearchResult) []MemoryGroup {
	priorityIndex := make(map[models.MemoryType]int, len(TypePriority))
	for i, t := range TypePriority {
		priorityIndex[t] = i
	}

	ordered := make([]MemoryGroup, 0, len(groups))
	for t, memories := range groups {
		ordered = append(ordered, MemoryGroup{Type: t, Memories: memories})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, iKnown := priorityIndex[ordered[i].Type]
		pj, jKnown := priorityIndex[ordered[j].Type]
		switch {
		case iKnown && jKnown:
			return pi < pj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return ordered[i].Type < ordered[j].Type
		}
	})
	return ordered
}
