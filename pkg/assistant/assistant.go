// Package assistant provides the top-level facade tying together memory,
// matching, rules, discovery, research, and the learning scheduler.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/echomind-ai/echomind/pkg/convo"
	"github.com/echomind-ai/echomind/pkg/discovery"
	"github.com/echomind-ai/echomind/pkg/embed"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/learner"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/match"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/research"
	"github.com/echomind-ai/echomind/pkg/rules"
	"github.com/echomind-ai/echomind/pkg/scripting"
	"github.com/echomind-ai/echomind/pkg/state"
)

// Assistant is the entry point for client code.
type Assistant struct {
	encoder    embed.Encoder
	store      memory.Store
	rules      *rules.Registry
	matcher    *match.Matcher
	tracker    *convo.Tracker
	discoverer *discovery.Discoverer
	registry   *learner.Registry
	pipeline   *research.Pipeline
	autoLearn  *learner.AutoLearner
	scripts    scripting.Engine
	persist    *state.Store

	closers []func() error
}

// Stats is a snapshot of assistant-wide state.
type Stats struct {
	ActiveMemories   int            `json:"active_memories"`
	ActiveRules      int            `json:"active_rules"`
	PendingTopics    map[string]int `json:"pending_topics"`
	FeedbackTotal    int            `json:"feedback_total"`
	FeedbackPositive int            `json:"feedback_positive"`
	Learning         learner.Stats  `json:"learning"`
}

// AnswerOptions tune a single Answer call.
type AnswerOptions struct {
	// Threshold overrides the configured similarity threshold for this
	// request. Zero or negative keeps the default.
	Threshold float64

	// DisableResearch keeps an unknown query out of topic discovery, so
	// asking it repeatedly never schedules research.
	DisableResearch bool
}

// Answer resolves a query for a user with default options. Rules are
// consulted first; otherwise the best memory above the threshold answers.
// Unknown queries feed topic discovery, and the turn is recorded against the
// user's history.
func (a *Assistant) Answer(ctx context.Context, userID, query string) (match.Result, error) {
	return a.AnswerWith(ctx, userID, query, AnswerOptions{})
}

// AnswerWith is Answer with per-request options.
func (a *Assistant) AnswerWith(ctx context.Context, userID, query string, opts AnswerOptions) (match.Result, error) {
	result, err := a.matcher.Answer(ctx, query, opts.Threshold)
	if err != nil {
		return match.Result{}, err
	}

	if result.Unknown {
		if !opts.DisableResearch {
			topic, promoted, derr := a.discoverer.RecordUnknown(ctx, result.NormalizedQuery)
			if derr != nil {
				log.WarnContext(ctx, "Topic discovery failed", "error", derr)
			} else if topic != "" {
				a.registry.RecordMention(topic)
				if promoted {
					a.persistTopics()
				}
			}
		}
	} else {
		result.Text = a.applyBeforeAnswer(ctx, result.NormalizedQuery, result.Text)
	}

	if userID != "" {
		turn := convo.Turn{
			Query:      result.NormalizedQuery,
			Answer:     result.Text,
			Source:     string(result.Source),
			Confidence: result.Confidence,
			Timestamp:  time.Now().UTC(),
		}
		if rerr := a.tracker.Record(userID, turn); rerr != nil {
			log.WarnContext(ctx, "Failed to record conversation turn", "error", rerr)
		} else if a.persist != nil {
			if profile := a.tracker.Profile(userID); profile != nil {
				if perr := a.persist.SaveProfile(*profile); perr != nil {
					log.WarnContext(ctx, "Failed to persist profile", "error", perr)
				}
			}
		}
	}
	return result, nil
}

// Teach stores an explicit fact with full confidence.
func (a *Assistant) Teach(ctx context.Context, input, output string, category memory.Category) (string, error) {
	input = strings.TrimSpace(input)
	output = strings.TrimSpace(output)
	if input == "" || output == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "taught input and output cannot be empty")
	}
	if category == "" {
		category = memory.CategoryGeneral
	}

	vector, err := a.encoder.Encode(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to embed taught fact")
	}
	id, err := a.store.Insert(ctx, memory.Record{
		InputText:  input,
		OutputText: output,
		Category:   category,
		Embedding:  vector,
		Confidence: 1.0,
	})
	if err != nil {
		return "", err
	}
	log.InfoContext(ctx, "Fact taught", "memory_id", id, "category", string(category))
	return id, nil
}

// Forget deactivates a memory. The record stays in the store for audit but
// no longer participates in retrieval.
func (a *Assistant) Forget(ctx context.Context, id string) error {
	return a.store.Deactivate(ctx, id)
}

// Memories lists active memories, newest first.
func (a *Assistant) Memories(ctx context.Context, category memory.Category, limit, offset int) ([]memory.Record, error) {
	var filter *memory.Filter
	if category != "" {
		filter = &memory.Filter{Category: category}
	}
	return a.store.ListActive(ctx, filter, limit, offset)
}

// AddRule registers a behavioral rule.
func (a *Assistant) AddRule(pattern, action string, priority int) (string, error) {
	id, err := a.rules.Add(pattern, action, priority)
	if err != nil {
		return "", err
	}
	if a.persist != nil {
		for _, rule := range a.rules.List() {
			if rule.ID == id {
				if perr := a.persist.SaveRule(rule); perr != nil {
					log.Warn("Failed to persist rule", "error", perr)
				}
				break
			}
		}
	}
	return id, nil
}

// RemoveRule deactivates a rule.
func (a *Assistant) RemoveRule(id string) error {
	if err := a.rules.Remove(id); err != nil {
		return err
	}
	if a.persist != nil {
		if perr := a.persist.DeleteRule(id); perr != nil {
			log.Warn("Failed to delete persisted rule", "error", perr)
		}
	}
	return nil
}

// Rules lists active rules, highest priority first.
func (a *Assistant) Rules() []rules.Rule {
	return a.rules.List()
}

// SubmitFeedback records a 1..5 rating of an answer.
func (a *Assistant) SubmitFeedback(fb convo.Feedback) error {
	if err := a.tracker.RecordFeedback(fb); err != nil {
		return err
	}
	if a.persist != nil {
		if fb.Timestamp.IsZero() {
			fb.Timestamp = time.Now().UTC()
		}
		if perr := a.persist.SaveFeedback(fb); perr != nil {
			log.Warn("Failed to persist feedback", "error", perr)
		}
	}
	return nil
}

// AddTopic registers a curated research topic.
func (a *Assistant) AddTopic(topic string) error {
	if err := a.autoLearn.AddTopic(topic); err != nil {
		return err
	}
	a.persistTopics()
	return nil
}

// RemoveTopic drops a topic from the learning schedule. Discovery state for
// the topic is cleared too, so it can earn promotion again later.
func (a *Assistant) RemoveTopic(topic string) error {
	if err := a.autoLearn.RemoveTopic(topic); err != nil {
		return err
	}
	a.discoverer.Forget(topic)
	if a.persist != nil {
		if perr := a.persist.DeleteTopic(strings.ToLower(strings.TrimSpace(topic))); perr != nil {
			log.Warn("Failed to delete persisted topic", "error", perr)
		}
	}
	return nil
}

// Topics returns the learning schedule.
func (a *Assistant) Topics() []learner.TopicEntry {
	return a.autoLearn.Topics()
}

// EnableAutoLearning starts the background scheduler.
func (a *Assistant) EnableAutoLearning(ctx context.Context) {
	a.autoLearn.Enable(ctx)
}

// DisableAutoLearning stops the background scheduler, waiting for in-flight
// research to settle.
func (a *Assistant) DisableAutoLearning() {
	a.autoLearn.Disable()
	a.persistTopics()
}

// AutoLearningEnabled reports whether the scheduler loop is running.
func (a *Assistant) AutoLearningEnabled() bool {
	return a.autoLearn.Enabled()
}

// ResearchNow forces an immediate research run for a topic, registering it
// as curated first if it is unknown. The run goes through the scheduler's
// state machine, so the topic's last-run timestamp and counters update and a
// topic already being researched is not run twice. Returns the number of
// facts merged.
func (a *Assistant) ResearchNow(ctx context.Context, topic string) (int, error) {
	err := a.autoLearn.AddTopic(topic)
	if err != nil && !errors.Is(err, errors.ErrDuplicateTopic) {
		return 0, err
	}
	facts, err := a.autoLearn.ResearchTopic(ctx, topic)
	if err != nil {
		return facts, err
	}
	a.persistTopics()
	return facts, nil
}

// Profile returns the interest profile for a user, or nil if unknown.
func (a *Assistant) Profile(userID string) *convo.UserProfile {
	return a.tracker.Profile(userID)
}

// History returns the user's recent turns, oldest first.
func (a *Assistant) History(userID string) []convo.Turn {
	return a.tracker.History(userID)
}

// Stats summarizes assistant state.
func (a *Assistant) Stats(ctx context.Context) (Stats, error) {
	count, err := a.store.CountActive(ctx)
	if err != nil {
		return Stats{}, err
	}
	total, positive := a.tracker.FeedbackStats()
	return Stats{
		ActiveMemories:   count,
		ActiveRules:      a.rules.Count(),
		PendingTopics:    a.discoverer.Pending(),
		FeedbackTotal:    total,
		FeedbackPositive: positive,
		Learning:         a.autoLearn.Stats(),
	}, nil
}

/// Close shuts the assistant down: the scheduler stops, state is flushed,
// and owned resources are released.
func (a *Assistant) Close() error {
	a.autoLearn.Disable()
	a.persistTopics()
	a.persistProfiles()

	var firstErr error
	for _, closer := range a.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Assistant) persistTopics() {
	if a.persist == nil {
		return
	}
	for _, entry := range a.autoLearn.Topics() {
		if err := a.persist.SaveTopic(entry); err != nil {
			log.Warn("Failed to persist topic", "topic", entry.Topic, "error", err)
		}
	}
}

func (a *Assistant) persistProfiles() {
	if a.persist == nil {
		return
	}
	for _, profile := range a.tracker.Profiles() {
		if err := a.persist.SaveProfile(profile); err != nil {
			log.Warn("Failed to persist profile", "user", profile.UserID, "error", err)
		}
	}
}

func (a *Assistant) applyBeforeAnswer(ctx context.Context, query, answer string) string {
	if a.scripts == nil || !a.scripts.HasFunction(scripting.HookBeforeAnswer) {
		return answer
	}
	out, err := a.scripts.ExecuteFunction(ctx, scripting.HookBeforeAnswer, query, answer)
	if err != nil {
		log.WarnContext(ctx, "before_answer hook failed", "error", err)
		return answer
	}
	if rewritten, ok := out.(string); ok && rewritten != "" {
		return rewritten
	}
	return answer
}
