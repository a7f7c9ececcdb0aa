package match_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/embed/adapters/local"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/match"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/inmem"
	"github.com/echomind-ai/echomind/pkg/rules"
)

// countingStore wraps a store and counts Query calls.
type countingStore struct {
	memory.Store
	mu      sync.Mutex
	queries int
}

func (c *countingStore) Query(ctx context.Context, vector []float32, topK int, filter *memory.Filter) ([]memory.Match, error) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
	return c.Store.Query(ctx, vector, topK, filter)
}

func newFixture(t *testing.T) (*match.Matcher, *countingStore, *rules.Registry) {
	t.Helper()
	encoder := local.NewEncoder(64)
	store := &countingStore{Store: inmem.NewStore(64, 0)}
	registry := rules.NewRegistry()

	matcher, err := match.NewMatcher(encoder, store, registry, match.Config{Threshold: 0.7, TopK: 5})
	require.NoError(t, err)

	ctx := context.Background()
	vec, err := encoder.Encode(ctx, "docker is a container platform")
	require.NoError(t, err)
	_, err = store.Insert(ctx, memory.Record{
		InputText:  "docker is a container platform",
		OutputText: "Docker packages applications into containers.",
		Category:   memory.CategoryGeneral,
		Embedding:  vec,
		Confidence: 1.0,
	})
	require.NoError(t, err)

	return matcher, store, registry
}

func TestRuleMatchShortCircuits(t *testing.T) {
	matcher, store, registry := newFixture(t)
	_, err := registry.Add("docker", "Rules answer about docker", 0)
	require.NoError(t, err)

	result, err := matcher.Answer(context.Background(), "tell me about docker", 0)
	require.NoError(t, err)

	assert.Equal(t, match.SourceRule, result.Source)
	assert.Equal(t, "Rules answer about docker", result.Text)
	assert.Equal(t, 1.0, result.Confidence)
	// The memory store is never consulted when a rule fires.
	assert.Equal(t, 0, store.queries)
}

func TestMemoryMatchAboveThreshold(t *testing.T) {
	matcher, _, _ := newFixture(t)

	result, err := matcher.Answer(context.Background(), "docker is a container platform", 0)
	require.NoError(t, err)

	assert.Equal(t, match.SourceMemory, result.Source)
	assert.Equal(t, "Docker packages applications into containers.", result.Text)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.False(t, result.Unknown)
	assert.NotEmpty(t, result.RecordID)
}

func TestUnknownBelowThreshold(t *testing.T) {
	matcher, _, _ := newFixture(t)

	result, err := matcher.Answer(context.Background(), "quantum entanglement basics", 0)
	require.NoError(t, err)

	assert.True(t, result.Unknown)
	assert.Equal(t, match.SourceUnknown, result.Source)
	assert.Empty(t, result.Text)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, "quantum entanglement basics", result.NormalizedQuery)
}

func TestEmptyQueryRejected(t *testing.T) {
	matcher, _, _ := newFixture(t)

	_, err := matcher.Answer(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

// fixedEncoder returns handcrafted vectors so similarities are exact.
type fixedEncoder struct {
	vectors map[string][]float32
}

func (f fixedEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	return f.vectors[text], nil
}

func (f fixedEncoder) Dimension() int { return 2 }

func TestPerRequestThreshold(t *testing.T) {
	encoder := fixedEncoder{vectors: map[string][]float32{
		"the capital city of france is paris": {1, 0},
		"france capital":                      {0.5, 0.866},
	}}
	store := inmem.NewStore(2, 0)
	matcher, err := match.NewMatcher(encoder, store, rules.NewRegistry(), match.Config{Threshold: 0.7, TopK: 5})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Insert(ctx, memory.Record{
		InputText:  "the capital city of france is paris",
		OutputText: "Paris",
		Category:   memory.CategoryGeneral,
		Embedding:  []float32{1, 0},
		Confidence: 1.0,
	})
	require.NoError(t, err)

	// The paraphrase sits at similarity 0.5, below the configured 0.7.
	result, err := matcher.Answer(ctx, "france capital", 0)
	require.NoError(t, err)
	assert.True(t, result.Unknown)

	// A caller willing to accept weaker matches lowers the bar per request.
	result, err = matcher.Answer(ctx, "france capital", 0.3)
	require.NoError(t, err)
	assert.False(t, result.Unknown)
	assert.Equal(t, match.SourceMemory, result.Source)
	assert.Equal(t, "Paris", result.Text)
	assert.InDelta(t, 0.5, result.Confidence, 0.01)

	// The override is per request; the next default call is strict again.
	result, err = matcher.Answer(ctx, "france capital", 0)
	require.NoError(t, err)
	assert.True(t, result.Unknown)

	_, err = matcher.Answer(ctx, "france capital", 1.5)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
