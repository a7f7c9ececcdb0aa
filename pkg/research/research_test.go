package research_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/embed/adapters/local"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/inmem"
	"github.com/echomind-ai/echomind/pkg/research"
	"github.com/echomind-ai/echomind/pkg/search"
	"github.com/echomind-ai/echomind/pkg/search/adapters/mock"
)

func newPipeline(t *testing.T, store memory.Store, providers ...search.Provider) *research.Pipeline {
	t.Helper()
	pipeline, err := research.NewPipeline(providers, local.NewEncoder(64), store, research.Config{
		QueryVariations:  1,
		MaxFactsPerTopic: 5,
		DedupThreshold:   0.92,
		DedupInclusive:   true,
		Confidence:       0.8,
	})
	require.NoError(t, err)
	return pipeline
}

func dockerResults() []search.Result {
	return []search.Result{
		{
			Title:   "Docker overview",
			URL:     "https://example.com/docker",
			Snippet: "Docker is a platform for building and running containers. Docker images package an application with its dependencies.",
		},
		{
			Title:   "Docker engine",
			URL:     "https://example.com/engine",
			Snippet: "The docker engine runs containerized workloads on a host machine.",
		},
	}
}

func TestResearchMergesFacts(t *testing.T) {
	store := inmem.NewStore(64, 0)
	provider := mock.NewProvider()
	provider.Stub("docker", dockerResults()...)
	pipeline := newPipeline(t, store, provider)

	facts, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Equal(t, 3, facts)

	records, err := store.ListActive(context.Background(), nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, record := range records {
		assert.Equal(t, memory.CategoryResearched, record.Category)
		assert.Equal(t, 0.8, record.Confidence)
		assert.Equal(t, "docker", record.InputText)
	}
}

func TestResearchDeduplicatesAgainstExistingMemory(t *testing.T) {
	store := inmem.NewStore(64, 0)
	provider := mock.NewProvider()
	provider.Stub("docker", dockerResults()...)
	pipeline := newPipeline(t, store, provider)

	first, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	require.Equal(t, 3, first)

	// A second run over identical results merges nothing new.
	second, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestResearchToleratesProviderFailure(t *testing.T) {
	store := inmem.NewStore(64, 0)
	broken := mock.NewProvider()
	broken.Fail(errors.ErrProviderUnavailable)
	working := mock.NewProvider()
	working.Stub("docker", dockerResults()...)
	pipeline := newPipeline(t, store, broken, working)

	facts, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Equal(t, 3, facts)
}

func TestResearchAllProvidersFailing(t *testing.T) {
	store := inmem.NewStore(64, 0)
	broken := mock.NewProvider()
	broken.Fail(errors.ErrProviderUnavailable)
	pipeline := newPipeline(t, store, broken)

	facts, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Zero(t, facts)
}

func TestResearchDeduplicatesByURLAcrossProviders(t *testing.T) {
	store := inmem.NewStore(64, 0)
	a := mock.NewProvider()
	a.Stub("docker", dockerResults()[0])
	b := mock.NewProvider()
	b.Stub("docker", dockerResults()[0]) // same URL
	pipeline := newPipeline(t, store, a, b)

	facts, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Equal(t, 2, facts)
}

func TestResearchHonorsFactCap(t *testing.T) {
	store := inmem.NewStore(64, 0)
	provider := mock.NewProvider()
	provider.Stub("docker", dockerResults()...)

	pipeline, err := research.NewPipeline([]search.Provider{provider}, local.NewEncoder(64), store, research.Config{
		QueryVariations:  1,
		MaxFactsPerTopic: 1,
		DedupThreshold:   0.92,
		Confidence:       0.8,
	})
	require.NoError(t, err)

	facts, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Equal(t, 1, facts)
}

func TestResearchFactFilter(t *testing.T) {
	store := inmem.NewStore(64, 0)
	provider := mock.NewProvider()
	provider.Stub("docker", dockerResults()...)
	pipeline := newPipeline(t, store, provider)
	pipeline.SetFactFilter(func(fact string) bool { return false })

	facts, err := pipeline.Research(context.Background(), "docker")
	require.NoError(t, err)
	assert.Zero(t, facts)
}

func TestResearchCancellation(t *testing.T) {
	store := inmem.NewStore(64, 0)
	provider := mock.NewProvider()
	provider.Stub("docker", dockerResults()...)
	pipeline := newPipeline(t, store, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipeline.Research(ctx, "docker")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResearchEmptyTopicRejected(t *testing.T) {
	pipeline := newPipeline(t, inmem.NewStore(64, 0), mock.NewProvider())
	_, err := pipeline.Research(context.Background(), "  ")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
