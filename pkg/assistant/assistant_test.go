package assistant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/assistant"
	"github.com/echomind-ai/echomind/pkg/convo"
	"github.com/echomind-ai/echomind/pkg/embed/adapters/local"
	"github.com/echomind-ai/echomind/pkg/learner"
	"github.com/echomind-ai/echomind/pkg/match"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/inmem"
	"github.com/echomind-ai/echomind/pkg/search"
	searchmock "github.com/echomind-ai/echomind/pkg/search/adapters/mock"
)

func newAssistant(t *testing.T, providers ...search.Provider) *assistant.Assistant {
	t.Helper()
	opts := assistant.DefaultOptions()
	opts.Discovery.PromoteAfterMentions = 2

	a, err := assistant.New(assistant.Deps{
		Encoder:   local.NewEncoder(64),
		Store:     inmem.NewStore(64, 0),
		Providers: providers,
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestTeachAnswerRoundTrip(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	id, err := a.Teach(ctx, "the capital of france", "Paris", memory.CategoryGeneral)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	result, err := a.Answer(ctx, "alex", "the capital of france")
	require.NoError(t, err)
	assert.Equal(t, match.SourceMemory, result.Source)
	assert.Equal(t, "Paris", result.Text)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
}

func TestForgottenMemoryStopsAnswering(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	id, err := a.Teach(ctx, "the capital of france", "Paris", memory.CategoryGeneral)
	require.NoError(t, err)
	require.NoError(t, a.Forget(ctx, id))

	result, err := a.Answer(ctx, "alex", "the capital of france")
	require.NoError(t, err)
	assert.True(t, result.Unknown)
}

func TestRuleBeatsMemory(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	_, err := a.Teach(ctx, "what about coffee", "Memory answer", memory.CategoryGeneral)
	require.NoError(t, err)
	_, err = a.AddRule("coffee", "Rule answer", 0)
	require.NoError(t, err)

	result, err := a.Answer(ctx, "alex", "what about coffee")
	require.NoError(t, err)
	assert.Equal(t, match.SourceRule, result.Source)
	assert.Equal(t, "Rule answer", result.Text)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestUnknownQueryDiscoversAndResearches(t *testing.T) {
	provider := searchmock.NewProvider()
	provider.Stub("docker", search.Result{
		Title:   "Docker",
		URL:     "https://example.com/docker",
		Snippet: "Docker is a platform for building and running containers.",
	})
	a := newAssistant(t, provider)
	ctx := context.Background()

	// First mention: unknown, counted.
	result, err := a.Answer(ctx, "alex", "What is Docker?")
	require.NoError(t, err)
	assert.True(t, result.Unknown)
	assert.Empty(t, a.Topics())

	// Second mention promotes the topic into the schedule.
	result, err = a.Answer(ctx, "alex", "Explain Docker")
	require.NoError(t, err)
	assert.True(t, result.Unknown)

	topics := a.Topics()
	require.Len(t, topics, 1)
	assert.Equal(t, "docker", topics[0].Topic)
	assert.Equal(t, learner.SourceDiscovered, topics[0].Source)

	// Research merges the fact, and the knowledge becomes answerable.
	facts, err := a.ResearchNow(ctx, "docker")
	require.NoError(t, err)
	require.Equal(t, 1, facts)

	result, err = a.Answer(ctx, "alex", "Docker is a platform for building and running containers.")
	require.NoError(t, err)
	assert.Equal(t, match.SourceMemory, result.Source)
	assert.Equal(t, "Docker is a platform for building and running containers.", result.Text)

	records, err := a.Memories(ctx, memory.CategoryResearched, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.8, records[0].Confidence)
}

func TestConversationTracking(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	_, err := a.Teach(ctx, "the capital of france", "Paris", memory.CategoryGeneral)
	require.NoError(t, err)
	_, err = a.Answer(ctx, "alex", "the capital of france")
	require.NoError(t, err)

	history := a.History("alex")
	require.Len(t, history, 1)
	assert.Equal(t, "Paris", history[0].Answer)

	profile := a.Profile("alex")
	require.NotNil(t, profile)
	assert.Equal(t, 1, profile.ConversationCount)

	require.NoError(t, a.SubmitFeedback(convo.Feedback{
		UserID:   "alex",
		Query:    "the capital of france",
		Response: "Paris",
		Rating:   5,
	}))
}

func TestStats(t *testing.T) {
	provider := searchmock.NewProvider()
	provider.Stub("kubernetes", search.Result{
		Title:   "Kubernetes",
		URL:     "https://example.com/kubernetes",
		Snippet: "Kubernetes orchestrates containers across many machines.",
	})
	a := newAssistant(t, provider)
	ctx := context.Background()

	_, err := a.Teach(ctx, "the capital of france", "Paris", memory.CategoryGeneral)
	require.NoError(t, err)
	_, err = a.AddRule("weather", "No forecasts yet", 0)
	require.NoError(t, err)
	require.NoError(t, a.AddTopic("docker"))

	// Two unknown mentions promote a discovered topic.
	_, err = a.Answer(ctx, "alex", "What is Kubernetes?")
	require.NoError(t, err)
	_, err = a.Answer(ctx, "alex", "Explain Kubernetes")
	require.NoError(t, err)

	_, err = a.ResearchNow(ctx, "docker")
	require.NoError(t, err)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveMemories)
	assert.Equal(t, 1, stats.ActiveRules)
	assert.Equal(t, 2, stats.Learning.TotalTopics)
	assert.Contains(t, stats.Learning.DiscoveredTopics, "kubernetes")
	assert.Equal(t, 1, stats.Learning.DiscoveredTopics["kubernetes"])
	assert.NotContains(t, stats.Learning.DiscoveredTopics, "docker")
	assert.Contains(t, stats.Learning.LastRuns, "docker")
	assert.False(t, stats.Learning.LastRuns["docker"].IsZero())
	assert.NotContains(t, stats.Learning.LastRuns, "kubernetes")
}

func TestAutoLearningToggle(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	assert.False(t, a.AutoLearningEnabled())
	a.EnableAutoLearning(ctx)
	assert.True(t, a.AutoLearningEnabled())
	a.DisableAutoLearning()
	assert.False(t, a.AutoLearningEnabled())
}

func TestRemoveTopic(t *testing.T) {
	a := newAssistant(t)

	require.NoError(t, a.AddTopic("docker"))
	require.NoError(t, a.RemoveTopic("docker"))
	assert.Empty(t, a.Topics())
}

func TestRemovedTopicCanBePromotedAgain(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()

	_, err := a.Answer(ctx, "alex", "What is Docker?")
	require.NoError(t, err)
	_, err = a.Answer(ctx, "alex", "Explain Docker")
	require.NoError(t, err)
	require.Len(t, a.Topics(), 1)

	require.NoError(t, a.RemoveTopic("docker"))
	require.Empty(t, a.Topics())

	// The discoverer forgot the topic with it, so fresh mentions earn a
	// fresh promotion.
	_, err = a.Answer(ctx, "alex", "What is Docker?")
	require.NoError(t, err)
	_, err = a.Answer(ctx, "alex", "Explain Docker")
	require.NoError(t, err)

	topics := a.Topics()
	require.Len(t, topics, 1)
	assert.Equal(t, "docker", topics[0].Topic)
}

// pinnedEncoder returns handcrafted vectors so similarities are exact.
type pinnedEncoder struct {
	vectors map[string][]float32
}

func (p pinnedEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	return p.vectors[text], nil
}

func (p pinnedEncoder) Dimension() int { return 2 }

func TestAnswerWithThreshold(t *testing.T) {
	encoder := pinnedEncoder{vectors: map[string][]float32{
		"the capital city of france is paris": {1, 0},
		"france capital":                      {0.5, 0.866},
	}}
	a, err := assistant.New(assistant.Deps{
		Encoder: encoder,
		Store:   inmem.NewStore(2, 0),
	}, assistant.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	ctx := context.Background()

	_, err = a.Teach(ctx, "the capital city of france is paris", "Paris", memory.CategoryGeneral)
	require.NoError(t, err)

	// The paraphrase sits at similarity 0.5, below the default threshold.
	result, err := a.Answer(ctx, "alex", "france capital")
	require.NoError(t, err)
	assert.True(t, result.Unknown)

	// A caller willing to accept weaker matches lowers the bar per request.
	result, err = a.AnswerWith(ctx, "alex", "france capital", assistant.AnswerOptions{Threshold: 0.3})
	require.NoError(t, err)
	assert.False(t, result.Unknown)
	assert.Equal(t, "Paris", result.Text)
	assert.InDelta(t, 0.5, result.Confidence, 0.01)

	// The next default call is strict again.
	result, err = a.Answer(ctx, "alex", "france capital")
	require.NoError(t, err)
	assert.True(t, result.Unknown)
}

func TestAnswerWithResearchDisabled(t *testing.T) {
	a := newAssistant(t)
	ctx := context.Background()
	opts := assistant.AnswerOptions{DisableResearch: true}

	for i := 0; i < 3; i++ {
		result, err := a.AnswerWith(ctx, "alex", "What is Docker?", opts)
		require.NoError(t, err)
		assert.True(t, result.Unknown)
	}
	assert.Empty(t, a.Topics())

	// The gate is per request; default calls still feed discovery.
	_, err := a.Answer(ctx, "alex", "What is Docker?")
	require.NoError(t, err)
	_, err = a.Answer(ctx, "alex", "Explain Docker")
	require.NoError(t, err)
	require.Len(t, a.Topics(), 1)
	assert.Equal(t, "docker", a.Topics()[0].Topic)
}
