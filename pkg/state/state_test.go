package state_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/convo"
	"github.com/echomind-ai/echomind/pkg/learner"
	"github.com/echomind-ai/echomind/pkg/rules"
	"github.com/echomind-ai/echomind/pkg/secure"
	"github.com/echomind-ai/echomind/pkg/state"
)

func newStore(t *testing.T, encryptor secure.Encryptor) *state.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := state.NewStore(path, encryptor)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTopicRoundTrip(t *testing.T) {
	store := newStore(t, nil)

	entry := learner.TopicEntry{
		Topic:     "docker",
		Source:    learner.SourceDiscovered,
		Interval:  24 * time.Hour,
		Status:    learner.StatusIdle,
		LastRun:   time.Now().UTC().Truncate(time.Second),
		RunCount:  2,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveTopic(entry))

	topics, err := store.Topics()
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, entry.Topic, topics[0].Topic)
	assert.Equal(t, entry.Source, topics[0].Source)
	assert.Equal(t, entry.RunCount, topics[0].RunCount)

	require.NoError(t, store.DeleteTopic("docker"))
	topics, err = store.Topics()
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestProfileRoundTrip(t *testing.T) {
	store := newStore(t, nil)

	profile := convo.UserProfile{
		UserID:            "alex",
		Interests:         map[string]float64{"docker": 3},
		ConversationCount: 5,
		LastInteraction:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveProfile(profile))

	profiles, err := store.Profiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, profile.UserID, profiles[0].UserID)
	assert.Equal(t, float64(3), profiles[0].Interests["docker"])
}

func TestRuleRoundTrip(t *testing.T) {
	store := newStore(t, nil)

	rule := rules.Rule{
		ID:        "rule-1",
		Pattern:   "weather",
		Action:    "No forecasts",
		Priority:  3,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveRule(rule))

	loaded, err := store.Rules()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, rule.Pattern, loaded[0].Pattern)

	require.NoError(t, store.DeleteRule("rule-1"))
	loaded, err = store.Rules()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFeedbackRoundTrip(t *testing.T) {
	store := newStore(t, nil)

	fb := convo.Feedback{
		UserID:    "alex",
		Query:     "what is docker",
		Response:  "Docker packages applications into containers.",
		Rating:    4,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveFeedback(fb))

	loaded, err := store.Feedback()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 4, loaded[0].Rating)
}

func TestEncryptedStore(t *testing.T) {
	enc, err := secure.NewAESGCM([]byte("0123456789abcdef"))
	require.NoError(t, err)
	store := newStore(t, enc)

	require.NoError(t, store.SaveTopic(learner.TopicEntry{
		Topic:    "docker",
		Source:   learner.SourceCurated,
		Interval: time.Hour,
		Status:   learner.StatusPending,
	}))

	topics, err := store.Topics()
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "docker", topics[0].Topic)
}
