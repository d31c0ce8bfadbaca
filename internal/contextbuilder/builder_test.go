package contextbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/ranking"
)

type stubSearcher struct {
	results []models.MemorySearchResult
	err     error

	gotTenant string
	gotQuery  string
	gotLimit  int
}

func (s *stubSearcher) Search(_ context.Context, tenantID, query string, limit int) ([]models.MemorySearchResult, error) {
	s.gotTenant = tenantID
	s.gotQuery = query
	s.gotLimit = limit
	return s.results, s.err
}

func mem(t models.MemoryType, content string, sim float64) models.MemorySearchResult {
	return models.MemorySearchResult{
		MemoryType: t,
		Content:    content,
		Similarity: sim,
		Confidence: 1.0,
		Importance: 1.0,
	}
}

func TestBuild_PassesSearchParams(t *testing.T) {
	s := &stubSearcher{}
	b := New(s)

	_, err := b.Build(context.Background(), "tenant-1", "refund policy", Options{SearchLimit: 25})
	require.NoError(t, err)

	assert.Equal(t, "tenant-1", s.gotTenant)
	assert.Equal(t, "refund policy", s.gotQuery)
	assert.Equal(t, 25, s.gotLimit)
}

func TestBuild_SearchErrorPropagates(t *testing.T) {
	s := &stubSearcher{err: errors.New("vector index offline")}
	b := New(s)

	_, err := b.Build(context.Background(), "tenant-1", "q", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory search")
}

func TestBuildFromResults_SectionsFollowTypePriority(t *testing.T) {
	// Facts arrive with higher similarity than the policy, but policy
	// sections still render first.
	results := []models.MemorySearchResult{
		mem(models.MemoryTypeFact, "office is in Austin", 0.99),
		mem(models.MemoryTypePolicy, "refunds require approval over $500", 0.70),
		mem(models.MemoryTypeProcedure, "escalate via handoff", 0.80),
	}

	payload := BuildFromResults(results, Options{})
	require.Len(t, payload.Sections, 3)

	assert.Equal(t, models.MemoryTypePolicy, payload.Sections[0].Type)
	assert.Equal(t, models.MemoryTypeProcedure, payload.Sections[1].Type)
	assert.Equal(t, models.MemoryTypeFact, payload.Sections[2].Type)
	assert.Equal(t, 3, payload.MemoryCount)
	assert.False(t, payload.Truncated)
}

func TestBuildFromResults_ThresholdsDropLowSimilarity(t *testing.T) {
	results := []models.MemorySearchResult{
		mem(models.MemoryTypeFact, "keep", 0.9),
		mem(models.MemoryTypeFact, "drop", 0.2),
	}

	payload := BuildFromResults(results, Options{
		Thresholds: ranking.ThresholdOptions{MinSimilarity: 0.5},
	})

	require.Equal(t, 1, payload.MemoryCount)
	assert.Equal(t, "keep", payload.Sections[0].Entries[0])
}

func TestBuildFromResults_EntryTruncation(t *testing.T) {
	long := strings.Repeat("x", 1000)
	payload := BuildFromResults(
		[]models.MemorySearchResult{mem(models.MemoryTypeFact, long, 0.9)},
		Options{MaxMemoryChars: 100},
	)

	require.Equal(t, 1, payload.MemoryCount)
	assert.Len(t, payload.Sections[0].Entries[0], 100)
}

func TestBuildFromResults_TotalBudgetTruncates(t *testing.T) {
	var results []models.MemorySearchResult
	for i := 0; i < 10; i++ {
		results = append(results, mem(models.MemoryTypeFact, strings.Repeat("y", 200), 0.9))
	}

	payload := BuildFromResults(results, Options{
		MaxChars:       500,
		MaxMemoryChars: 200,
		Diversify:      ranking.DiversifyOptions{MaxPerType: 10, Limit: 10},
	})

	assert.Equal(t, 2, payload.MemoryCount)
	assert.True(t, payload.Truncated)
	assert.LessOrEqual(t, payload.TotalChars, 500)
}

func TestBuildFromResults_Empty(t *testing.T) {
	payload := BuildFromResults(nil, Options{})
	assert.Empty(t, payload.Sections)
	assert.Zero(t, payload.MemoryCount)
	assert.False(t, payload.Truncated)
}
