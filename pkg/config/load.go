package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from a byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvironmentOverrides(&config)

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied, suitable for
// tests and for running without a config file.
func Default() *Config {
	config := &Config{}
	applyEnvironmentOverrides(config)
	if err := validateConfig(config); err != nil {
		// Defaults always validate; a failure here is a programming error.
		panic(err)
	}
	return config
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) {
	if dsn := os.Getenv("ECHOMIND_PGVECTOR_URL"); dsn != "" {
		config.Memory.PgVector.ConnectionString = dsn
	}

	if path := os.Getenv("ECHOMIND_SQLITE_PATH"); path != "" {
		config.Memory.SQLite.Path = path
	}

	if path := os.Getenv("ECHOMIND_STATE_PATH"); path != "" {
		config.State.Path = path
	}

	if key := os.Getenv("ECHOMIND_STATE_KEY"); key != "" {
		config.State.EncryptionKey = key
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.OpenAI.APIKey = apiKey
	}
}

// validateConfig validates the configuration and applies defaults.
func validateConfig(config *Config) error {
	// Memory store
	switch strings.ToLower(config.Memory.Type) {
	case "":
		config.Memory.Type = "inmem"
	case "inmem", "chromem":
		// In-process stores need no further settings
	case "sqlite":
		if config.Memory.SQLite.Path == "" {
			config.Memory.SQLite.Path = "./data/echomind.db"
		}
	case "pgvector":
		if config.Memory.PgVector.ConnectionString == "" {
			return fmt.Errorf("connection string is required for pgvector memory type")
		}
		if config.Memory.PgVector.TableName == "" {
			config.Memory.PgVector.TableName = "memory_records"
		}
	default:
		return fmt.Errorf("unsupported memory store type: %s", config.Memory.Type)
	}

	if config.Memory.MaxMemories <= 0 {
		config.Memory.MaxMemories = 10000
	}

	// Embedding encoder
	switch strings.ToLower(config.Embedding.Provider) {
	case "", "local":
		config.Embedding.Provider = "local"
		if config.Embedding.Local.Dimension <= 0 {
			config.Embedding.Local.Dimension = 384
		}
	case "openai":
		// API key can arrive via environment, so it is not checked here
		if config.Embedding.OpenAI.Model == "" {
			config.Embedding.OpenAI.Model = "text-embedding-3-small"
		}
		if config.Embedding.OpenAI.Dimension <= 0 {
			config.Embedding.OpenAI.Dimension = 1536
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}

	if config.Embedding.CacheEntries <= 0 {
		config.Embedding.CacheEntries = 10000
	}

	// The store dimension follows the encoder unless set explicitly
	if config.Memory.Dimension <= 0 {
		if strings.ToLower(config.Embedding.Provider) == "openai" {
			config.Memory.Dimension = config.Embedding.OpenAI.Dimension
		} else {
			config.Memory.Dimension = config.Embedding.Local.Dimension
		}
	}

	// Matching
	if config.Matching.DefaultThreshold <= 0 {
		config.Matching.DefaultThreshold = 0.7
	}
	if config.Matching.DefaultThreshold > 1.0 {
		return fmt.Errorf("matching default threshold must be in (0,1], got %v", config.Matching.DefaultThreshold)
	}
	if config.Matching.TopK <= 0 {
		config.Matching.TopK = 5
	}

	// Learning scheduler
	if config.Learning.Tick.Std() <= 0 {
		config.Learning.Tick = Duration(time.Minute)
	}
	if config.Learning.DefaultInterval.Std() <= 0 {
		config.Learning.DefaultInterval = Duration(24 * time.Hour)
	}
	if config.Learning.DiscoveredInterval.Std() <= 0 {
		config.Learning.DiscoveredInterval = Duration(7 * 24 * time.Hour)
	}
	if config.Learning.MaxConcurrent <= 0 {
		config.Learning.MaxConcurrent = 2
	}
	if config.Learning.PromoteAfterMentions <= 0 {
		config.Learning.PromoteAfterMentions = 2
	}
	if config.Learning.StaleRunningTimeout.Std() <= 0 {
		config.Learning.StaleRunningTimeout = Duration(30 * time.Minute)
	}

	// Research pipeline
	if config.Research.MaxResultsPerProvider <= 0 {
		config.Research.MaxResultsPerProvider = 3
	}
	if config.Research.ProviderTimeout.Std() <= 0 {
		config.Research.ProviderTimeout = Duration(10 * time.Second)
	}
	if config.Research.DedupThreshold <= 0 {
		config.Research.DedupThreshold = 0.92
	}
	if config.Research.Confidence <= 0 {
		config.Research.Confidence = 0.8
	}
	if config.Research.MaxFactsPerTopic <= 0 {
		config.Research.MaxFactsPerTopic = 5
	}
	if config.Research.QueryVariations <= 0 {
		config.Research.QueryVariations = 2
	}
	if config.Research.DedupThreshold <= config.Matching.DefaultThreshold {
		return fmt.Errorf("dedup threshold (%v) must be stricter than the default answer threshold (%v)",
			config.Research.DedupThreshold, config.Matching.DefaultThreshold)
	}

	// Search providers
	if len(config.Search.Providers) == 0 {
		config.Search.Providers = []string{"duckduckgo", "wikipedia"}
	}
	for _, p := range config.Search.Providers {
		switch strings.ToLower(p) {
		case "duckduckgo", "wikipedia", "mock":
		default:
			return fmt.Errorf("unsupported search provider: %s", p)
		}
	}

	// Conversation context
	if config.Conversation.HistoryLimit <= 0 {
		config.Conversation.HistoryLimit = 20
	}

	// State store
	if config.State.Path == "" {
		config.State.Path = "./data/echomind.state.db"
	}
	if key := config.State.EncryptionKey; key != "" {
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("state encryption key must be 16, 24, or 32 bytes, got %d", len(key))
		}
	}

	return nil
}
