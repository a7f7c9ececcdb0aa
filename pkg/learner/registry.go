// Package learner schedules autonomous research on registered topics. Topics
// are either curated (added explicitly) or discovered (promoted from
// unanswered queries); the scheduler researches whichever is due next while
// guaranteeing a topic is never researched concurrently with itself.
package learner

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/echomind-ai/echomind/pkg/errors"
)

// Source distinguishes how a topic entered the registry.
type Source string

const (
	SourceCurated    Source = "curated"
	SourceDiscovered Source = "discovered"
)

// Status is the lifecycle state of a topic.
type Status string

const (
	// StatusPending means the topic has never been researched and is due
	// immediately.
	StatusPending Status = "pending"

	// StatusIdle means the topic was researched and waits for its interval.
	StatusIdle Status = "idle"

	// StatusRunning means a research run is in flight.
	StatusRunning Status = "running"

	// StatusDisabled means the topic is excluded from scheduling.
	StatusDisabled Status = "disabled"
)

// TopicEntry is the scheduling record for one topic.
type TopicEntry struct {
	Topic        string        `json:"topic"`
	Source       Source        `json:"source"`
	Interval     time.Duration `json:"interval"`
	LastRun      time.Time     `json:"last_run"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	MentionCount int           `json:"mention_count"`
	RunCount     int           `json:"run_count"`
	FactsLearned int           `json:"facts_learned"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Registry holds topic entries and performs the state transitions the
// scheduler relies on. All methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*TopicEntry
}

// NewRegistry creates an empty topic registry.
func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]*TopicEntry)}
}

// Add registers a topic. Topics are keyed by their normalized (lowercased,
// trimmed) form; adding a topic that already exists returns
// ErrDuplicateTopic without modifying the entry.
func (r *Registry) Add(topic string, source Source, interval time.Duration) error {
	key := normalizeKey(topic)
	if key == "" {
		return errors.Wrap(errors.ErrInvalidInput, "topic cannot be empty")
	}
	if interval <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "topic interval must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[key]; exists {
		return errors.ErrDuplicateTopic
	}
	r.topics[key] = &TopicEntry{
		Topic:     key,
		Source:    source,
		Interval:  interval,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// Restore reinstates a persisted entry. A topic restored in the running
// state is reset to pending: the run it belonged to no longer exists.
func (r *Registry) Restore(entry TopicEntry) error {
	key := normalizeKey(entry.Topic)
	if key == "" || entry.Interval <= 0 {
		return errors.Wrap(errors.ErrInvalidInput, "restored topic entry is incomplete")
	}
	entry.Topic = key
	if entry.Status == StatusRunning {
		entry.Status = StatusPending
		entry.StartedAt = time.Time{}
	}

	r.mu.Lock()
	r.topics[key] = &entry
	r.mu.Unlock()
	return nil
}

// Remove deletes a topic. Removing an unknown topic returns ErrNotFound.
func (r *Registry) Remove(topic string) error {
	key := normalizeKey(topic)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[key]; !exists {
		return errors.ErrNotFound
	}
	delete(r.topics, key)
	return nil
}

// Disable excludes a topic from scheduling without forgetting its history.
func (r *Registry) Disable(topic string) error {
	return r.setStatus(topic, StatusDisabled)
}

// Enable re-admits a disabled topic. It becomes pending if it has never run.
func (r *Registry) Enable(topic string) error {
	key := normalizeKey(topic)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.topics[key]
	if !exists {
		return errors.ErrNotFound
	}
	if entry.Status != StatusDisabled {
		return nil
	}
	if entry.LastRun.IsZero() {
		entry.Status = StatusPending
	} else {
		entry.Status = StatusIdle
	}
	return nil
}

func (r *Registry) setStatus(topic string, status Status) error {
	key := normalizeKey(topic)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.topics[key]
	if !exists {
		return errors.ErrNotFound
	}
	entry.Status = status
	return nil
}

// Get returns a copy of the entry for a topic.
func (r *Registry) Get(topic string) (TopicEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.topics[normalizeKey(topic)]
	if !exists {
		return TopicEntry{}, false
	}
	return *entry, true
}

// List returns copies of every entry, sorted by topic.
func (r *Registry) List() []TopicEntry {
	r.mu.Lock()
	out := make([]TopicEntry, 0, len(r.topics))
	for _, entry := range r.topics {
		out = append(out, *entry)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// RecordMention bumps a topic's mention count if it is registered.
func (r *Registry) RecordMention(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, exists := r.topics[normalizeKey(topic)]; exists {
		entry.MentionCount++
	}
}

// due returns topics eligible to run at now, most overdue first with
// lexicographic tie-breaking so the schedule is deterministic.
func (r *Registry) due(now time.Time) []TopicEntry {
	r.mu.Lock()
	var out []TopicEntry
	for _, entry := range r.topics {
		if entry.Status == StatusPending {
			out = append(out, *entry)
			continue
		}
		if entry.Status == StatusIdle && !now.Before(entry.LastRun.Add(entry.Interval)) {
			out = append(out, *entry)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		di, dj := dueAt(out[i]), dueAt(out[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// dueAt treats never-researched topics as due since the epoch, so every
// pending topic ties and ordering falls to the topic name.
func dueAt(entry TopicEntry) time.Time {
	if entry.LastRun.IsZero() {
		return time.Time{}
	}
	return entry.LastRun.Add(entry.Interval)
}

// claim transitions a topic to running. It fails if the topic is gone or is
// not in a runnable state, which is what makes concurrent self-research
// impossible: only one caller can win the transition.
func (r *Registry) claim(topic string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.topics[normalizeKey(topic)]
	if !exists {
		return false
	}
	if entry.Status != StatusPending && entry.Status != StatusIdle {
		return false
	}
	entry.Status = StatusRunning
	entry.StartedAt = now
	return true
}

// finish transitions a running topic back to idle, recording the outcome.
// A discovered topic's interval is stretched to rescheduleAfter following
// its first completed run.
func (r *Registry) finish(topic string, now time.Time, facts int, rescheduleAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.topics[normalizeKey(topic)]
	if !exists || entry.Status != StatusRunning {
		return
	}
	entry.Status = StatusIdle
	entry.LastRun = now
	entry.StartedAt = time.Time{}
	entry.RunCount++
	entry.FactsLearned += facts
	if entry.Source == SourceDiscovered && entry.RunCount == 1 && rescheduleAfter > 0 {
		entry.Interval = rescheduleAfter
	}
}

// release returns a running topic to a runnable state without recording a
// run, used when research is cancelled or fails before completing.
func (r *Registry) release(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.topics[normalizeKey(topic)]
	if !exists || entry.Status != StatusRunning {
		return
	}
	entry.StartedAt = time.Time{}
	if entry.LastRun.IsZero() {
		entry.Status = StatusPending
	} else {
		entry.Status = StatusIdle
	}
}

// recoverStale resets topics that have sat in the running state longer than
// timeout. Returns the topics recovered.
func (r *Registry) recoverStale(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recovered []string
	for _, entry := range r.topics {
		if entry.Status != StatusRunning || entry.StartedAt.IsZero() {
			continue
		}
		if now.Sub(entry.StartedAt) >= timeout {
			entry.StartedAt = time.Time{}
			if entry.LastRun.IsZero() {
				entry.Status = StatusPending
			} else {
				entry.Status = StatusIdle
			}
			recovered = append(recovered, entry.Topic)
		}
	}
	sort.Strings(recovered)
	return recovered
}

func normalizeKey(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
