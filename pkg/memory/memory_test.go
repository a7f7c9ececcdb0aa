package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/echomind-ai/echomind/pkg/memory"
)

func TestRankMatchesOrdering(t *testing.T) {
	now := time.Now().UTC()
	matches := []memory.Match{
		{Record: memory.Record{ID: "low", CreatedAt: now}, Similarity: 0.2},
		{Record: memory.Record{ID: "high", CreatedAt: now}, Similarity: 0.9},
		{Record: memory.Record{ID: "mid", CreatedAt: now}, Similarity: 0.5},
	}

	ranked := memory.RankMatches(matches, 10)
	assert.Equal(t, "high", ranked[0].Record.ID)
	assert.Equal(t, "mid", ranked[1].Record.ID)
	assert.Equal(t, "low", ranked[2].Record.ID)
}

func TestRankMatchesTieBreaksNewest(t *testing.T) {
	now := time.Now().UTC()
	matches := []memory.Match{
		{Record: memory.Record{ID: "older", CreatedAt: now.Add(-time.Hour)}, Similarity: 0.8},
		{Record: memory.Record{ID: "newer", CreatedAt: now}, Similarity: 0.8},
	}

	ranked := memory.RankMatches(matches, 10)
	assert.Equal(t, "newer", ranked[0].Record.ID)
}

func TestRankMatchesTruncates(t *testing.T) {
	now := time.Now().UTC()
	matches := []memory.Match{
		{Record: memory.Record{ID: "a", CreatedAt: now}, Similarity: 0.9},
		{Record: memory.Record{ID: "b", CreatedAt: now}, Similarity: 0.8},
		{Record: memory.Record{ID: "c", CreatedAt: now}, Similarity: 0.7},
	}

	ranked := memory.RankMatches(matches, 2)
	assert.Len(t, ranked, 2)
}

func TestCategoryRegistry(t *testing.T) {
	assert.True(t, memory.ValidCategory(memory.CategoryGeneral))
	assert.True(t, memory.ValidCategory(memory.CategoryResearched))
	assert.True(t, memory.ValidCategory(memory.CategoryPersonal))
	assert.False(t, memory.ValidCategory("made-up"))

	memory.RegisterCategory("project_notes")
	assert.True(t, memory.ValidCategory("project_notes"))
}
