// Package match answers queries by combining rule matching with semantic
// memory retrieval.
package match

import (
	"context"
	"strings"

	"github.com/echomind-ai/echomind/pkg/embed"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/rules"
)

// Source identifies where an answer came from.
type Source string

const (
	SourceRule    Source = "rule"
	SourceMemory  Source = "memory"
	SourceUnknown Source = "unknown"
)

// Result is the outcome of answering a query.
type Result struct {
	// Text is the answer text. Empty when Unknown is true.
	Text string

	// Confidence is 1.0 for rule answers and the cosine similarity of the
	// best match for memory answers. Zero when Unknown is true.
	Confidence float64

	// Source reports which path produced the answer.
	Source Source

	// RecordID is set for memory answers.
	RecordID string

	// RuleID is set for rule answers.
	RuleID string

	// NormalizedQuery is the trimmed query the caller can feed into topic
	// discovery when the answer is unknown.
	NormalizedQuery string

	// Unknown is true when no rule matched and no memory cleared the
	// similarity threshold.
	Unknown bool
}

// Config contains the configuration for the matcher.
type Config struct {
	// Threshold is the minimum cosine similarity for a memory answer.
	Threshold float64

	// TopK is how many candidate memories to retrieve per query.
	TopK int
}

// DefaultConfig returns a default matcher configuration.
func DefaultConfig() Config {
	return Config{Threshold: 0.7, TopK: 5}
}

// Matcher resolves queries against rules first, then the memory store.
type Matcher struct {
	encoder embed.Encoder
	store   memory.Store
	rules   *rules.Registry
	config  Config
}

// NewMatcher creates a matcher over the given encoder, store, and rules.
func NewMatcher(encoder embed.Encoder, store memory.Store, registry *rules.Registry, config Config) (*Matcher, error) {
	if encoder == nil || store == nil || registry == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "matcher requires an encoder, store, and rule registry")
	}
	if config.Threshold <= 0 || config.Threshold > 1 {
		config.Threshold = DefaultConfig().Threshold
	}
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Matcher{encoder: encoder, store: store, rules: registry, config: config}, nil
}

// Answer resolves a query. Rule matches win outright with confidence 1.0 and
// never touch the store. Otherwise the query is embedded and the best active
// memory above the threshold answers with its similarity as confidence.
//
// threshold applies to this request only; zero or negative falls back to the
// configured default.
func (m *Matcher) Answer(ctx context.Context, query string, threshold float64) (Result, error) {
	if threshold <= 0 {
		threshold = m.config.Threshold
	}
	if threshold > 1 {
		return Result{}, errors.Wrap(errors.ErrInvalidInput, "threshold cannot exceed 1")
	}
	normalized := strings.TrimSpace(query)
	if normalized == "" {
		return Result{}, errors.Wrap(errors.ErrInvalidInput, "query cannot be empty")
	}

	if rule, ok := m.rules.Match(normalized); ok {
		log.DebugContext(ctx, "Rule matched query", "rule_id", rule.ID, "pattern", rule.Pattern)
		return Result{
			Text:            rule.Action,
			Confidence:      1.0,
			Source:          SourceRule,
			RuleID:          rule.ID,
			NormalizedQuery: normalized,
		}, nil
	}

	vector, err := m.encoder.Encode(ctx, normalized)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to embed query")
	}

	matches, err := m.store.Query(ctx, vector, m.config.TopK, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "memory query failed")
	}

	if len(matches) > 0 && matches[0].Similarity >= threshold {
		best := matches[0]
		log.DebugContext(ctx, "Memory matched query",
			"memory_id", best.Record.ID,
			"similarity", best.Similarity)
		return Result{
			Text:            best.Record.OutputText,
			Confidence:      best.Similarity,
			Source:          SourceMemory,
			RecordID:        best.Record.ID,
			NormalizedQuery: normalized,
		}, nil
	}

	return Result{
		Source:          SourceUnknown,
		NormalizedQuery: normalized,
		Unknown:         true,
	}, nil
}

// Threshold exposes the configured similarity threshold.
func (m *Matcher) Threshold() float64 { return m.config.Threshold }
