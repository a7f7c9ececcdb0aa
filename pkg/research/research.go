// Package research implements the research pipeline: fan a topic out to
// search providers, distill the results into candidate facts, drop
// duplicates of existing knowledge, and merge the rest into memory.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/echomind-ai/echomind/pkg/embed"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/search"
)

// FactFilter optionally vets a candidate fact before merge-back; returning
// false excludes it. It is how scripted hooks participate in research.
type FactFilter func(fact string) bool

// Config contains the configuration for the research pipeline.
type Config struct {
	// QueryVariations is how many rephrasings of the topic to search
	// beyond the topic itself.
	QueryVariations int

	// MaxResultsPerQuery bounds results requested from each provider.
	MaxResultsPerQuery int

	// MaxFactsPerTopic caps how many new facts one run may merge.
	MaxFactsPerTopic int

	// ProviderTimeout bounds each provider call.
	ProviderTimeout time.Duration

	// DedupThreshold is the similarity at which a candidate counts as a
	// duplicate of existing memory.
	DedupThreshold float64

	// DedupInclusive treats a candidate exactly at the threshold as a
	// duplicate. When false only strictly greater similarity is dropped.
	DedupInclusive bool

	// Confidence assigned to merged research facts.
	Confidence float64
}

// DefaultConfig returns a default research configuration.
func DefaultConfig() Config {
	return Config{
		QueryVariations:    2,
		MaxResultsPerQuery: 5,
		MaxFactsPerTopic:   5,
		ProviderTimeout:    10 * time.Second,
		DedupThreshold:     0.92,
		DedupInclusive:     true,
		Confidence:         0.8,
	}
}

// Pipeline researches topics into the memory store.
type Pipeline struct {
	providers []search.Provider
	encoder   embed.Encoder
	store     memory.Store
	filter    FactFilter
	config    Config
}

// NewPipeline creates a research pipeline over the given providers.
func NewPipeline(providers []search.Provider, encoder embed.Encoder, store memory.Store, config Config) (*Pipeline, error) {
	if len(providers) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "research requires at least one search provider")
	}
	if encoder == nil || store == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "research requires an encoder and store")
	}
	defaults := DefaultConfig()
	if config.QueryVariations < 0 {
		config.QueryVariations = defaults.QueryVariations
	}
	if config.MaxResultsPerQuery <= 0 {
		config.MaxResultsPerQuery = defaults.MaxResultsPerQuery
	}
	if config.MaxFactsPerTopic <= 0 {
		config.MaxFactsPerTopic = defaults.MaxFactsPerTopic
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = defaults.ProviderTimeout
	}
	if config.DedupThreshold <= 0 || config.DedupThreshold > 1 {
		config.DedupThreshold = defaults.DedupThreshold
	}
	if config.Confidence <= 0 || config.Confidence > 1 {
		config.Confidence = defaults.Confidence
	}
	return &Pipeline{
		providers: providers,
		encoder:   encoder,
		store:     store,
		config:    config,
	}, nil
}

// SetFactFilter installs an additional vetting step, typically a scripted
// hook. Must be called before concurrent use begins.
func (p *Pipeline) SetFactFilter(filter FactFilter) { p.filter = filter }

// Research implements learner.Researcher. It returns the number of facts
// merged into memory. Provider failures are tolerated: a run only gathers
// what the remaining providers returned, and a run where every provider
// failed simply merges nothing.
func (p *Pipeline) Research(ctx context.Context, topic string) (int, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return 0, errors.Wrap(errors.ErrInvalidInput, "topic cannot be empty")
	}

	results := p.gather(ctx, topic)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	candidates := extractFacts(topic, results)
	log.DebugContext(ctx, "Research gathered candidates",
		"topic", topic,
		"results", len(results),
		"candidates", len(candidates))

	merged := 0
	for _, fact := range candidates {
		if merged >= p.config.MaxFactsPerTopic {
			break
		}
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		if p.filter != nil && !p.filter(fact) {
			continue
		}

		vector, err := p.encoder.Encode(ctx, fact)
		if err != nil {
			log.WarnContext(ctx, "Failed to embed candidate fact", "topic", topic, "error", err)
			continue
		}

		duplicate, err := p.isDuplicate(ctx, vector)
		if err != nil {
			return merged, err
		}
		if duplicate {
			continue
		}

		_, err = p.store.Insert(ctx, memory.Record{
			InputText:  topic,
			OutputText: fact,
			Context:    fmt.Sprintf("researched: %s", topic),
			Category:   memory.CategoryResearched,
			Embedding:  vector,
			Confidence: p.config.Confidence,
		})
		if errors.Is(err, errors.ErrCapacityExceeded) {
			log.WarnContext(ctx, "Memory at capacity, stopping merge", "topic", topic)
			break
		}
		if err != nil {
			return merged, errors.Wrap(err, "failed to merge fact for %q", topic)
		}
		merged++
	}
	return merged, nil
}

// gather queries every provider with the topic and its variations,
// deduplicating results by URL across providers.
func (p *Pipeline) gather(ctx context.Context, topic string) []search.Result {
	queries := append([]string{topic}, queryVariations(topic, p.config.QueryVariations)...)

	var results []search.Result
	seenURLs := make(map[string]bool)
	for _, provider := range p.providers {
		for _, query := range queries {
			if ctx.Err() != nil {
				return results
			}
			callCtx, cancel := context.WithTimeout(ctx, p.config.ProviderTimeout)
			found, err := provider.Search(callCtx, query, p.config.MaxResultsPerQuery)
			cancel()
			if err != nil {
				log.WarnContext(ctx, "Search provider failed",
					"provider", provider.Name(),
					"query", query,
					"error", err)
				break // Skip this provider's remaining queries.
			}
			for _, result := range found {
				if result.URL != "" && seenURLs[result.URL] {
					continue
				}
				if result.URL != "" {
					seenURLs[result.URL] = true
				}
				results = append(results, result)
			}
		}
	}
	return results
}

func (p *Pipeline) isDuplicate(ctx context.Context, vector []float32) (bool, error) {
	matches, err := p.store.Query(ctx, vector, 1, nil)
	if err != nil {
		return false, errors.Wrap(err, "dedup query failed")
	}
	if len(matches) == 0 {
		return false, nil
	}
	best := matches[0].Similarity
	if p.config.DedupInclusive {
		return best >= p.config.DedupThreshold, nil
	}
	return best > p.config.DedupThreshold, nil
}

// queryVariations rephrases a topic into up to n additional search queries.
func queryVariations(topic string, n int) []string {
	all := []string{
		"what is " + topic,
		"explain " + topic,
		topic + " overview",
		topic + " facts",
	}
	if n > len(all) {
		n = len(all)
	}
	if n < 0 {
		n = 0
	}
	return all[:n]
}

// extractFacts segments result snippets into sentences and keeps the ones
// that look informative and relevant to the topic. Facts are deduplicated
// by their normalized text.
func extractFacts(topic string, results []search.Result) []string {
	var facts []string
	seen := make(map[string]bool)
	for _, result := range results {
		for _, sentence := range splitSentences(result.Snippet) {
			if !relevantFact(topic, sentence) {
				continue
			}
			key := normalizeFact(sentence)
			if seen[key] {
				continue
			}
			seen[key] = true
			facts = append(facts, sentence)
		}
	}
	return facts
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// relevantFact keeps sentences of a reasonable length that mention some
// part of the topic.
func relevantFact(topic, sentence string) bool {
	if len(sentence) < 20 || len(sentence) > 500 {
		return false
	}
	lowered := strings.ToLower(sentence)
	for _, word := range strings.Fields(strings.ToLower(topic)) {
		if len(word) >= 3 && strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}

func normalizeFact(sentence string) string {
	lowered := strings.ToLower(strings.TrimSpace(sentence))
	lowered = strings.TrimRight(lowered, ".!?")
	return strings.Join(strings.Fields(lowered), " ")
}
