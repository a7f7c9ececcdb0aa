// Package convo tracks per-user conversation history, lightweight interest
// profiles, and answer feedback.
package convo

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/echomind-ai/echomind/pkg/errors"
)

// Turn is a single question/answer exchange.
type Turn struct {
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Feedback records how useful an answer was, rated 1 (useless) to 5 (spot on).
type Feedback struct {
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Helpful reports whether the rating counts as positive.
func (f Feedback) Helpful() bool { return f.Rating >= 4 }

// UserProfile accumulates what a user tends to ask about.
type UserProfile struct {
	UserID            string             `json:"user_id"`
	Interests         map[string]float64 `json:"interests"`
	ConversationCount int                `json:"conversation_count"`
	LastInteraction   time.Time          `json:"last_interaction"`
}

// Tracker keeps bounded per-user history and profiles in memory.
// All methods are safe for concurrent use.
type Tracker struct {
	mu           sync.RWMutex
	histories    map[string][]Turn
	profiles     map[string]*UserProfile
	feedback     []Feedback
	historyLimit int
}

// NewTracker creates a tracker keeping at most historyLimit turns per user.
func NewTracker(historyLimit int) *Tracker {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Tracker{
		histories:    make(map[string][]Turn),
		profiles:     make(map[string]*UserProfile),
		historyLimit: historyLimit,
	}
}

// Record appends a turn to the user's history, evicting the oldest turn once
// the limit is reached, and updates the user's interest profile.
func (t *Tracker) Record(userID string, turn Turn) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "user ID cannot be empty")
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	history := append(t.histories[userID], turn)
	if len(history) > t.historyLimit {
		history = history[len(history)-t.historyLimit:]
	}
	t.histories[userID] = history

	profile, ok := t.profiles[userID]
	if !ok {
		profile = &UserProfile{UserID: userID, Interests: make(map[string]float64)}
		t.profiles[userID] = profile
	}
	profile.ConversationCount++
	profile.LastInteraction = turn.Timestamp
	for _, word := range interestWords(turn.Query) {
		profile.Interests[word]++
	}
	return nil
}

// History returns the user's turns, oldest first. The slice is a copy.
func (t *Tracker) History(userID string) []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	history := t.histories[userID]
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}

// Profile returns a snapshot of the user's profile, or nil if unknown.
func (t *Tracker) Profile(userID string) *UserProfile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	profile, ok := t.profiles[userID]
	if !ok {
		return nil
	}
	snapshot := &UserProfile{
		UserID:            profile.UserID,
		Interests:         make(map[string]float64, len(profile.Interests)),
		ConversationCount: profile.ConversationCount,
		LastInteraction:   profile.LastInteraction,
	}
	for k, v := range profile.Interests {
		snapshot.Interests[k] = v
	}
	return snapshot
}

// TopInterests returns the user's n strongest interests, strongest first.
func (t *Tracker) TopInterests(userID string, n int) []string {
	profile := t.Profile(userID)
	if profile == nil || n <= 0 {
		return nil
	}
	type pair struct {
		word   string
		weight float64
	}
	pairs := make([]pair, 0, len(profile.Interests))
	for w, c := range profile.Interests {
		pairs = append(pairs, pair{w, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].weight != pairs[j].weight {
			return pairs[i].weight > pairs[j].weight
		}
		return pairs[i].word < pairs[j].word
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.word
	}
	return out
}

// RecordFeedback stores answer feedback for later review.
func (t *Tracker) RecordFeedback(fb Feedback) error {
	if strings.TrimSpace(fb.UserID) == "" || strings.TrimSpace(fb.Query) == "" {
		return errors.Wrap(errors.ErrInvalidInput, "feedback requires a user ID and query")
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		return errors.Wrap(errors.ErrInvalidInput, "rating must be between 1 and 5")
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	t.feedback = append(t.feedback, fb)
	t.mu.Unlock()
	return nil
}

// FeedbackStats returns the total number of ratings and how many were
// positive.
func (t *Tracker) FeedbackStats() (total, positive int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, fb := range t.feedback {
		if fb.Helpful() {
			positive++
		}
	}
	return len(t.feedback), positive
}

// FeedbackFor returns all feedback recorded for a user.
func (t *Tracker) FeedbackFor(userID string) []Feedback {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Feedback
	for _, fb := range t.feedback {
		if fb.UserID == userID {
			out = append(out, fb)
		}
	}
	return out
}

// RestoreProfile reinstates a persisted profile.
func (t *Tracker) RestoreProfile(profile UserProfile) {
	if profile.UserID == "" {
		return
	}
	if profile.Interests == nil {
		profile.Interests = make(map[string]float64)
	}
	t.mu.Lock()
	t.profiles[profile.UserID] = &profile
	t.mu.Unlock()
}

// Profiles returns snapshots of every known profile.
func (t *Tracker) Profiles() []UserProfile {
	t.mu.RLock()
	ids := make([]string, 0, len(t.profiles))
	for id := range t.profiles {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	out := make([]UserProfile, 0, len(ids))
	for _, id := range ids {
		if p := t.Profile(id); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

var interestStopwords = map[string]struct{}{
	"what": {}, "who": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"the": {}, "is": {}, "are": {}, "a": {}, "an": {}, "to": {}, "of": {},
	"in": {}, "on": {}, "for": {}, "and": {}, "or": {}, "do": {}, "does": {},
	"can": {}, "you": {}, "me": {}, "my": {}, "about": {}, "tell": {},
}

func interestWords(query string) []string {
	var out []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		word := strings.Trim(field, ".,!?\"'")
		if len(word) < 3 {
			continue
		}
		if _, skip := interestStopwords[word]; skip {
			continue
		}
		out = append(out, word)
	}
	return out
}
