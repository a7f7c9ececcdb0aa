package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/echomind-ai/echomind/pkg/log"
)

// Duration wraps time.Duration so intervals can be written as "24h" or "90s"
// in YAML files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the top-level configuration for the assistant core.
type Config struct {
	// Memory configures the memory store backend
	Memory MemoryConfig `yaml:"memory"`

	// Embedding configures the embedding encoder
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Matching configures the similarity matcher defaults
	Matching MatchingConfig `yaml:"matching"`

	// Learning configures the auto-learning scheduler
	Learning LearningConfig `yaml:"learning"`

	// Research configures the research pipeline
	Research ResearchConfig `yaml:"research"`

	// Search configures the web search providers
	Search SearchConfig `yaml:"search"`

	// Conversation configures per-user conversation context
	Conversation ConversationConfig `yaml:"conversation"`

	// State configures the durable state store (topics, profiles, rules)
	State StateConfig `yaml:"state"`

	// Scripting configures the Lua hook engine
	Scripting ScriptingConfig `yaml:"scripting"`

	// Logging configures the logging behavior
	Logging log.Config `yaml:"logging"`
}

// MemoryConfig configures the memory store backend.
type MemoryConfig struct {
	// Type specifies the backend ("inmem", "chromem", "sqlite", "pgvector")
	Type string `yaml:"type"`

	// MaxMemories caps the number of active records the store accepts
	MaxMemories int `yaml:"max_memories"`

	// Dimension is the fixed embedding dimensionality of the store
	Dimension int `yaml:"dimension"`

	// Chromem configures the chromem-go backend
	Chromem ChromemConfig `yaml:"chromem"`

	// SQLite configures the SQLite backend
	SQLite SQLiteConfig `yaml:"sqlite"`

	// PgVector configures the PostgreSQL pgvector backend
	PgVector PgVectorConfig `yaml:"pgvector"`
}

// ChromemConfig configures the chromem-go vector store.
type ChromemConfig struct {
	// Collection is the chromem collection name
	Collection string `yaml:"collection"`
}

// SQLiteConfig configures the SQLite memory store.
type SQLiteConfig struct {
	// Path is the database file path
	Path string `yaml:"path"`
}

// PgVectorConfig configures the PostgreSQL pgvector memory store.
type PgVectorConfig struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string `yaml:"connection_string"`

	// TableName is the table used for memory records
	TableName string `yaml:"table_name"`
}

// EmbeddingConfig configures the embedding encoder.
type EmbeddingConfig struct {
	// Provider selects the encoder ("openai", "local")
	Provider string `yaml:"provider"`

	// CacheEntries bounds the per-process embedding memoization cache
	CacheEntries int64 `yaml:"cache_entries"`

	// OpenAI configures the OpenAI embeddings adapter
	OpenAI OpenAIConfig `yaml:"openai"`

	// Local configures the deterministic local encoder
	Local LocalEncoderConfig `yaml:"local"`
}

// OpenAIConfig configures OpenAI integration.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the embedding model to use
	Model string `yaml:"model"`

	// Dimension is the dimensionality the model produces
	Dimension int `yaml:"dimension"`
}

// LocalEncoderConfig configures the deterministic local encoder.
type LocalEncoderConfig struct {
	// Dimension is the vector dimensionality
	Dimension int `yaml:"dimension"`
}

// MatchingConfig configures similarity matching defaults.
type MatchingConfig struct {
	// DefaultThreshold is used when a caller does not supply one
	DefaultThreshold float64 `yaml:"default_threshold"`

	// TopK is the number of candidates considered per query
	TopK int `yaml:"top_k"`
}

// LearningConfig configures the auto-learning scheduler.
type LearningConfig struct {
	// Enabled starts the scheduler loop at boot
	Enabled bool `yaml:"enabled"`

	// Tick is the interval between scheduler scans
	Tick Duration `yaml:"tick"`

	// DefaultInterval is the research interval for curated topics
	DefaultInterval Duration `yaml:"default_interval"`

	// DiscoveredInterval is the research interval applied to a discovered
	// topic after its first successful research run
	DiscoveredInterval Duration `yaml:"discovered_interval"`

	// MaxConcurrent caps simultaneous research runs across distinct topics
	MaxConcurrent int `yaml:"max_concurrent"`

	// PromoteAfterMentions is the mention count at which a discovered topic
	// is promoted into the learning registry
	PromoteAfterMentions int `yaml:"promote_after_mentions"`

	// StaleRunningTimeout forcibly returns a topic stuck in running to idle
	StaleRunningTimeout Duration `yaml:"stale_running_timeout"`
}

// ResearchConfig configures the research pipeline.
type ResearchConfig struct {
	// MaxResultsPerProvider caps snippets requested from each provider
	MaxResultsPerProvider int `yaml:"max_results_per_provider"`

	// ProviderTimeout bounds each provider call
	ProviderTimeout Duration `yaml:"provider_timeout"`

	// DedupThreshold is the similarity at which a researched fact is
	// considered a duplicate of an existing memory; stricter than the
	// answer threshold
	DedupThreshold float64 `yaml:"dedup_threshold"`

	// DedupInclusive discards facts whose similarity equals the threshold
	// exactly; when false only strictly greater similarities are duplicates
	DedupInclusive bool `yaml:"dedup_inclusive"`

	// Confidence is assigned to researched memories; research is less
	// trusted than explicit teaching
	Confidence float64 `yaml:"confidence"`

	// MaxFactsPerTopic caps accepted facts per research run
	MaxFactsPerTopic int `yaml:"max_facts_per_topic"`

	// QueryVariations is how many phrasing variations of a topic are searched
	QueryVariations int `yaml:"query_variations"`
}

// SearchConfig configures the web search providers.
type SearchConfig struct {
	// Providers lists enabled providers in query order
	// ("duckduckgo", "wikipedia", "mock")
	Providers []string `yaml:"providers"`

	// DuckDuckGo configures the DuckDuckGo provider
	DuckDuckGo ProviderConfig `yaml:"duckduckgo"`

	// Wikipedia configures the Wikipedia provider
	Wikipedia ProviderConfig `yaml:"wikipedia"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	// BaseURL overrides the provider endpoint (used in tests)
	BaseURL string `yaml:"base_url"`
}

// ConversationConfig configures per-user conversation context.
type ConversationConfig struct {
	// HistoryLimit bounds the rolling window of (query, response) pairs
	HistoryLimit int `yaml:"history_limit"`
}

// StateConfig configures the durable state store.
type StateConfig struct {
	// Path is the BoltDB file path
	Path string `yaml:"path"`

	// EncryptionKey enables AES-GCM payload encryption when non-empty;
	// must be 16, 24, or 32 bytes
	EncryptionKey string `yaml:"encryption_key"`
}

// ScriptingConfig configures the Lua hook engine.
type ScriptingConfig struct {
	// Paths is a list of directories containing Lua hook scripts
	Paths []string `yaml:"paths"`
}
