// Package rules implements user-defined behavioral rules. Rules are checked
// before any memory retrieval: a matching rule answers with full confidence
// and short-circuits the semantic lookup entirely.
package rules

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echomind-ai/echomind/pkg/errors"
)

// Rule pairs a trigger pattern with the response to produce when it fires.
type Rule struct {
	ID        string    `json:"id"`
	Pattern   string    `json:"pattern"`
	Action    string    `json:"action"`
	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry holds rules in memory and matches queries against them.
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Add registers a rule and returns its generated ID. Pattern matching is
// case-insensitive, so the pattern is stored lowercased.
func (r *Registry) Add(pattern, action string, priority int) (string, error) {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	action = strings.TrimSpace(action)
	if pattern == "" || action == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "rule pattern and action cannot be empty")
	}

	rule := Rule{
		ID:        uuid.New().String(),
		Pattern:   pattern,
		Action:    action,
		Priority:  priority,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.rules[rule.ID] = rule
	r.mu.Unlock()
	return rule.ID, nil
}

// Restore re-registers a previously persisted rule, preserving its identity.
func (r *Registry) Restore(rule Rule) error {
	if rule.ID == "" || rule.Pattern == "" || rule.Action == "" {
		return errors.Wrap(errors.ErrInvalidInput, "restored rule is incomplete")
	}
	rule.Pattern = strings.ToLower(rule.Pattern)
	r.mu.Lock()
	r.rules[rule.ID] = rule
	r.mu.Unlock()
	return nil
}

// Remove deactivates a rule. Removing an unknown rule returns ErrNotFound.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return errors.ErrNotFound
	}
	rule.Active = false
	r.rules[id] = rule
	return nil
}

// Match returns the single active rule whose pattern appears in the query,
// matched case-insensitively. When several rules match, the highest priority
// wins; priority ties break by earliest creation, then by ID, so the outcome
// is deterministic. The boolean reports whether any rule matched.
func (r *Registry) Match(query string) (Rule, bool) {
	lowered := strings.ToLower(query)

	r.mu.RLock()
	var candidates []Rule
	for _, rule := range r.rules {
		if rule.Active && strings.Contains(lowered, rule.Pattern) {
			candidates = append(candidates, rule)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return Rule{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

// List returns all active rules, highest priority first.
func (r *Registry) List() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Active {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of active rules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rule := range r.rules {
		if rule.Active {
			n++
		}
	}
	return n
}
