// Package contextbuilder assembles bounded, diverse, priority-ordered context
// payloads from memory similarity-search results, for injection into an
// agent's reasoning step.
package contextbuilder

import (
	"context"
	"fmt"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/ranking"
)

// Searcher is the external Memory Store collaborator: a similarity query over
// the durable memory repository. The builder stays agnostic to its
// implementation.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, limit int) ([]models.MemorySearchResult, error)
}

// Payload bounds. A section entry is one memory's content, truncated.
const (
	DefaultSearchLimit    = 50
	DefaultMaxChars       = 4000
	DefaultMaxMemoryChars = 300
)

// Options tunes one Build call. Zero values take the defaults.
type Options struct {
	// SearchLimit is how many raw candidates to pull from the Searcher.
	SearchLimit int
	// Thresholds are hard pre-filter cutoffs applied before scoring.
	Thresholds ranking.ThresholdOptions
	// Rank tunes composite scoring.
	Rank ranking.RankOptions
	// Diversify tunes per-type/per-subject caps and the selection limit.
	Diversify ranking.DiversifyOptions
	// MaxChars bounds the total payload; MaxMemoryChars bounds one entry.
	MaxChars       int
	MaxMemoryChars int
}

func (o Options) withDefaults() Options {
	if o.SearchLimit <= 0 {
		o.SearchLimit = DefaultSearchLimit
	}
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MaxMemoryChars <= 0 {
		o.MaxMemoryChars = DefaultMaxMemoryChars
	}
	return o
}

// Section is one presentation block of the payload: a memory type and its
// selected entries, highest relevance first.
type Section struct {
	Type    models.MemoryType `json:"type"`
	Entries []string          `json:"entries"`
}

// Payload is the bounded context handed to an agent turn.
type Payload struct {
	Sections    []Section `json:"sections"`
	MemoryCount int       `json:"memory_count"`
	TotalChars  int       `json:"total_chars"`
	Truncated   bool      `json:"truncated"`
}

// Builder assembles payloads from a Searcher.
type Builder struct {
	searcher Searcher
}

// New constructs a Builder.
func New(s Searcher) *Builder {
	return &Builder{searcher: s}
}

// Build runs the full assembly pipeline for one agent turn:
// search -> threshold filter -> rank -> diversify -> group -> render bounded.
// Deadlines on the search are the caller's responsibility via ctx.
func (b *Builder) Build(ctx context.Context, tenantID, query string, opts Options) (*Payload, error) {
	opts = opts.withDefaults()

	results, err := b.searcher.Search(ctx, tenantID, query, opts.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	return BuildFromResults(results, opts), nil
}

// BuildFromResults is the pure tail of the pipeline, usable offline (e.g. by
// the CLI over a results file) and in tests without a Searcher.
func BuildFromResults(results []models.MemorySearchResult, opts Options) *Payload {
	opts = opts.withDefaults()

	filtered := ranking.FilterByThresholds(results, opts.Thresholds)
	ranked := ranking.RankMemories(filtered, opts.Rank)
	selected := ranking.DiversifyMemories(ranked, opts.Diversify)
	groups := ranking.SortGroupsByPriority(ranking.GroupByType(selected))

	payload := &Payload{}
	budget := opts.MaxChars

	for _, group := range groups {
		section := Section{Type: group.Type}
		for _, m := range group.Memories {
			entry := truncate(m.Content, opts.MaxMemoryChars)
			if len(entry) > budget {
				payload.Truncated = true
				continue
			}
			section.Entries = append(section.Entries, entry)
			budget -= len(entry)
			payload.MemoryCount++
		}
		if len(section.Entries) > 0 {
			payload.Sections = append(payload.Sections, section)
		}
	}

	payload.TotalChars = opts.MaxChars - budget
	return payload
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
