// Package discovery turns unanswered queries into candidate research topics.
// Queries are normalized to a canonical topic, mention counts accumulate, and
// once a topic has been asked about often enough it is promoted to the
// learning scheduler.
package discovery

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
)

// TopicSink receives promoted topics. Promoting a topic that is already
// scheduled must return errors.ErrDuplicateTopic.
type TopicSink interface {
	AddDiscoveredTopic(ctx context.Context, topic string) error
}

// Normalizer optionally rewrites a normalized topic before counting. It is
// how scripted hooks participate in discovery; returning an empty string
// drops the topic.
type Normalizer func(topic string) string

// Config contains the configuration for topic discovery.
type Config struct {
	// PromoteAfterMentions is how many distinct mentions a topic needs
	// before it is promoted for research.
	PromoteAfterMentions int

	// MinTopicLength and MaxTopicLength bound acceptable topic sizes
	// in characters after normalization.
	MinTopicLength int
	MaxTopicLength int
}

// DefaultConfig returns a default discovery configuration.
func DefaultConfig() Config {
	return Config{PromoteAfterMentions: 2, MinTopicLength: 3, MaxTopicLength: 60}
}

// Discoverer counts unknown-topic mentions and promotes frequent ones.
// All methods are safe for concurrent use.
type Discoverer struct {
	mu         sync.Mutex
	mentions   map[string]int
	promoted   map[string]bool
	sink       TopicSink
	normalizer Normalizer
	config     Config
}

// NewDiscoverer creates a discoverer that promotes topics into sink.
func NewDiscoverer(sink TopicSink, config Config) (*Discoverer, error) {
	if sink == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "discoverer requires a topic sink")
	}
	if config.PromoteAfterMentions <= 0 {
		config.PromoteAfterMentions = DefaultConfig().PromoteAfterMentions
	}
	if config.MinTopicLength <= 0 {
		config.MinTopicLength = DefaultConfig().MinTopicLength
	}
	if config.MaxTopicLength <= 0 {
		config.MaxTopicLength = DefaultConfig().MaxTopicLength
	}
	return &Discoverer{
		mentions: make(map[string]int),
		promoted: make(map[string]bool),
		sink:     sink,
		config:   config,
	}, nil
}

// SetNormalizer installs an additional normalization step, typically a
// scripted hook. Must be called before concurrent use begins.
func (d *Discoverer) SetNormalizer(n Normalizer) { d.normalizer = n }

// RecordUnknown notes that a query went unanswered. Returns the normalized
// topic (empty if the query did not yield a valid topic) and whether this
// mention caused a promotion.
func (d *Discoverer) RecordUnknown(ctx context.Context, query string) (string, bool, error) {
	topic := NormalizeTopic(query)
	if topic != "" && d.normalizer != nil {
		topic = strings.TrimSpace(strings.ToLower(d.normalizer(topic)))
	}
	if !d.validTopic(topic) {
		return "", false, nil
	}

	d.mu.Lock()
	d.mentions[topic]++
	count := d.mentions[topic]
	alreadyPromoted := d.promoted[topic]
	shouldPromote := !alreadyPromoted && count >= d.config.PromoteAfterMentions
	if shouldPromote {
		d.promoted[topic] = true
	}
	d.mu.Unlock()

	if !shouldPromote {
		return topic, false, nil
	}

	err := d.sink.AddDiscoveredTopic(ctx, topic)
	if errors.Is(err, errors.ErrDuplicateTopic) {
		// Already scheduled elsewhere; the promotion stands.
		return topic, false, nil
	}
	if err != nil {
		d.mu.Lock()
		d.promoted[topic] = false
		d.mu.Unlock()
		return topic, false, errors.Wrap(err, "failed to promote topic %q", topic)
	}

	log.InfoContext(ctx, "Promoted discovered topic", "topic", topic, "mentions", count)
	return topic, true, nil
}

// Forget drops a topic's mention count and promotion mark, so future unknown
// queries can promote it again. Used when the topic is removed from the
// learning schedule.
func (d *Discoverer) Forget(topic string) {
	topic = NormalizeTopic(topic)
	d.mu.Lock()
	delete(d.mentions, topic)
	delete(d.promoted, topic)
	d.mu.Unlock()
}

// Mentions returns the mention count for a topic.
func (d *Discoverer) Mentions(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mentions[NormalizeTopic(topic)]
}

// Pending returns topics that have been mentioned but not yet promoted.
func (d *Discoverer) Pending() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int)
	for topic, count := range d.mentions {
		if !d.promoted[topic] {
			out[topic] = count
		}
	}
	return out
}

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^what\s+(?:is|are|was|were)\s+(?:a\s+|an\s+|the\s+)?(.+)$`),
	regexp.MustCompile(`^who\s+(?:is|are|was|were)\s+(.+)$`),
	regexp.MustCompile(`^tell\s+me\s+about\s+(.+)$`),
	regexp.MustCompile(`^explain\s+(?:to\s+me\s+)?(.+)$`),
	regexp.MustCompile(`^how\s+(?:do|does|did|can)\s+(.+?)\s+work$`),
	regexp.MustCompile(`^define\s+(.+)$`),
}

// NormalizeTopic reduces a query to a canonical topic string: lowercased,
// question scaffolding stripped, punctuation trimmed. Normalization is
// deterministic, so repeated phrasings of the same question converge on one
// topic.
func NormalizeTopic(query string) string {
	topic := strings.ToLower(strings.TrimSpace(query))
	topic = strings.TrimRight(topic, "?!.")
	topic = strings.Join(strings.Fields(topic), " ")

	for _, pattern := range questionPatterns {
		if m := pattern.FindStringSubmatch(topic); m != nil {
			topic = m[1]
			break
		}
	}
	return strings.TrimSpace(strings.Trim(topic, "\"'"))
}

// personalKeywords mark queries about the user rather than the world; they
// never become research topics.
var personalKeywords = []string{
	"my ", "me ", " i ", "mine", "myself", "password", "secret",
	"remind", "schedule", "appointment", "birthday",
}

func (d *Discoverer) validTopic(topic string) bool {
	if len(topic) < d.config.MinTopicLength || len(topic) > d.config.MaxTopicLength {
		return false
	}
	padded := " " + topic + " "
	for _, kw := range personalKeywords {
		if strings.Contains(padded, kw) {
			return false
		}
	}
	return true
}
