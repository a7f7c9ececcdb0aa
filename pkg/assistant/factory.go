package assistant

import (
	"context"
	"fmt"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/echomind-ai/echomind/pkg/config"
	"github.com/echomind-ai/echomind/pkg/convo"
	"github.com/echomind-ai/echomind/pkg/discovery"
	"github.com/echomind-ai/echomind/pkg/embed"
	localembed "github.com/echomind-ai/echomind/pkg/embed/adapters/local"
	openaiembed "github.com/echomind-ai/echomind/pkg/embed/adapters/openai"
	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/learner"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/match"
	"github.com/echomind-ai/echomind/pkg/memory"
	chromemstore "github.com/echomind-ai/echomind/pkg/memory/adapters/chromem"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/inmem"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/pgvector"
	sqlitestore "github.com/echomind-ai/echomind/pkg/memory/adapters/sqlite"
	"github.com/echomind-ai/echomind/pkg/research"
	"github.com/echomind-ai/echomind/pkg/rules"
	"github.com/echomind-ai/echomind/pkg/scripting"
	"github.com/echomind-ai/echomind/pkg/search"
	"github.com/echomind-ai/echomind/pkg/search/adapters/duckduckgo"
	searchmock "github.com/echomind-ai/echomind/pkg/search/adapters/mock"
	"github.com/echomind-ai/echomind/pkg/search/adapters/wikipedia"
	"github.com/echomind-ai/echomind/pkg/secure"
	"github.com/echomind-ai/echomind/pkg/state"
)

// Deps carries the components the assistant is assembled from. Fields left
// nil fall back to sensible in-process defaults, which keeps tests short.
type Deps struct {
	Encoder   embed.Encoder
	Store     memory.Store
	Rules     *rules.Registry
	Tracker   *convo.Tracker
	Registry  *learner.Registry
	Providers []search.Provider
	Scripts   scripting.Engine
	Persist   *state.Store
	Clock     learner.Clock
}

// Options tune the assembled assistant.
type Options struct {
	Matching  match.Config
	Discovery discovery.Config
	Research  research.Config
	Learning  learner.Config
}

// DefaultOptions returns defaults for every component.
func DefaultOptions() Options {
	return Options{
		Matching:  match.DefaultConfig(),
		Discovery: discovery.DefaultConfig(),
		Research:  research.DefaultConfig(),
		Learning:  learner.DefaultConfig(),
	}
}

// New assembles an assistant from explicit dependencies.
func New(deps Deps, opts Options) (*Assistant, error) {
	if deps.Encoder == nil || deps.Store == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "assistant requires an encoder and memory store")
	}
	if deps.Rules == nil {
		deps.Rules = rules.NewRegistry()
	}
	if deps.Tracker == nil {
		deps.Tracker = convo.NewTracker(0)
	}
	if deps.Registry == nil {
		deps.Registry = learner.NewRegistry()
	}
	if len(deps.Providers) == 0 {
		deps.Providers = []search.Provider{searchmock.NewProvider()}
	}

	matcher, err := match.NewMatcher(deps.Encoder, deps.Store, deps.Rules, opts.Matching)
	if err != nil {
		return nil, err
	}
	pipeline, err := research.NewPipeline(deps.Providers, deps.Encoder, deps.Store, opts.Research)
	if err != nil {
		return nil, err
	}
	autoLearn, err := learner.NewAutoLearner(deps.Registry, pipeline, deps.Clock, opts.Learning)
	if err != nil {
		return nil, err
	}
	discoverer, err := discovery.NewDiscoverer(autoLearn, opts.Discovery)
	if err != nil {
		return nil, err
	}

	a := &Assistant{
		encoder:    deps.Encoder,
		store:      deps.Store,
		rules:      deps.Rules,
		matcher:    matcher,
		tracker:    deps.Tracker,
		discoverer: discoverer,
		registry:   deps.Registry,
		pipeline:   pipeline,
		autoLearn:  autoLearn,
		scripts:    deps.Scripts,
		persist:    deps.Persist,
	}
	a.wireHooks()
	return a, nil
}

// wireHooks connects loaded script functions to the components that honor
// them.
func (a *Assistant) wireHooks() {
	if a.scripts == nil {
		return
	}
	if a.scripts.HasFunction(scripting.HookNormalizeTopic) {
		a.discoverer.SetNormalizer(func(topic string) string {
			out, err := a.scripts.ExecuteFunction(context.Background(), scripting.HookNormalizeTopic, topic)
			if err != nil {
				log.Warn("normalize_topic hook failed", "error", err)
				return topic
			}
			if normalized, ok := out.(string); ok {
				return normalized
			}
			return topic
		})
	}
	if a.scripts.HasFunction(scripting.HookFilterFact) {
		a.pipeline.SetFactFilter(func(fact string) bool {
			out, err := a.scripts.ExecuteFunction(context.Background(), scripting.HookFilterFact, fact)
			if err != nil {
				log.Warn("filter_fact hook failed", "error", err)
				return true
			}
			keep, ok := out.(bool)
			return !ok || keep
		})
	}
}

// NewFromConfig assembles an assistant from a configuration, constructing
// the configured adapters and restoring persisted state.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Assistant, error) {
	if cfg == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "config cannot be nil")
	}

	encoder, err := initEncoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}

	store, storeCloser, err := initMemoryStore(ctx, cfg, encoder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}

	providers, err := initProviders(cfg)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Encoder:   encoder,
		Store:     store,
		Rules:     rules.NewRegistry(),
		Tracker:   convo.NewTracker(cfg.Conversation.HistoryLimit),
		Registry:  learner.NewRegistry(),
		Providers: providers,
	}

	if len(cfg.Scripting.Paths) > 0 {
		engine, serr := scripting.NewLuaEngine(scripting.DefaultConfig())
		if serr != nil {
			return nil, fmt.Errorf("failed to initialize scripting engine: %w", serr)
		}
		for _, dir := range cfg.Scripting.Paths {
			if lerr := engine.LoadScriptDir(dir); lerr != nil {
				engine.Close()
				return nil, fmt.Errorf("failed to load scripts from %s: %w", dir, lerr)
			}
		}
		deps.Scripts = engine
	}

	if cfg.State.Path != "" {
		var encryptor secure.Encryptor = secure.Noop{}
		if cfg.State.EncryptionKey != "" {
			encryptor, err = secure.NewAESGCM([]byte(cfg.State.EncryptionKey))
			if err != nil {
				return nil, fmt.Errorf("failed to initialize encryption: %w", err)
			}
		}
		persist, perr := state.NewStore(cfg.State.Path, encryptor)
		if perr != nil {
			return nil, perr
		}
		deps.Persist = persist
		if rerr := restoreState(persist, deps); rerr != nil {
			persist.Close()
			return nil, rerr
		}
	}

	opts := Options{
		Matching: match.Config{
			Threshold: cfg.Matching.DefaultThreshold,
			TopK:      cfg.Matching.TopK,
		},
		Discovery: discovery.Config{
			PromoteAfterMentions: cfg.Learning.PromoteAfterMentions,
		},
		Research: research.Config{
			QueryVariations:    cfg.Research.QueryVariations,
			MaxResultsPerQuery: cfg.Research.MaxResultsPerProvider,
			MaxFactsPerTopic:   cfg.Research.MaxFactsPerTopic,
			ProviderTimeout:    cfg.Research.ProviderTimeout.Std(),
			DedupThreshold:     cfg.Research.DedupThreshold,
			DedupInclusive:     cfg.Research.DedupInclusive,
			Confidence:         cfg.Research.Confidence,
		},
		Learning: learner.Config{
			Tick:                cfg.Learning.Tick.Std(),
			DefaultInterval:     cfg.Learning.DefaultInterval.Std(),
			DiscoveredInterval:  cfg.Learning.DiscoveredInterval.Std(),
			MaxConcurrent:       cfg.Learning.MaxConcurrent,
			StaleRunningTimeout: cfg.Learning.StaleRunningTimeout.Std(),
		},
	}

	a, err := New(deps, opts)
	if err != nil {
		if deps.Persist != nil {
			deps.Persist.Close()
		}
		if deps.Scripts != nil {
			deps.Scripts.Close()
		}
		return nil, err
	}

	if storeCloser != nil {
		a.closers = append(a.closers, storeCloser)
	}
	if deps.Scripts != nil {
		a.closers = append(a.closers, deps.Scripts.Close)
	}
	if deps.Persist != nil {
		a.closers = append(a.closers, deps.Persist.Close)
	}
	if mc, ok := encoder.(*embed.MemoizingEncoder); ok {
		a.closers = append(a.closers, func() error { mc.Close(); return nil })
	}

	if cfg.Learning.Enabled {
		a.EnableAutoLearning(ctx)
	}

	log.Info("Assistant initialized",
		"memory", cfg.Memory.Type,
		"embedding", cfg.Embedding.Provider,
		"providers", len(providers))
	return a, nil
}

func initEncoder(cfg *config.Config) (embed.Encoder, error) {
	var (
		inner embed.Encoder
		err   error
	)
	switch cfg.Embedding.Provider {
	case "openai":
		inner, err = openaiembed.NewEncoder(openaiembed.Config{
			APIKey:    cfg.Embedding.OpenAI.APIKey,
			Model:     cfg.Embedding.OpenAI.Model,
			Dimension: cfg.Embedding.OpenAI.Dimension,
		})
		if err != nil {
			return nil, err
		}
	case "local", "":
		inner = localembed.NewEncoder(cfg.Embedding.Local.Dimension)
	default:
		return nil, errors.Wrap(errors.ErrInvalidInput,
			"unsupported embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Embedding.CacheEntries > 0 {
		return embed.NewMemoizing(inner, cfg.Embedding.CacheEntries)
	}
	return inner, nil
}

func initMemoryStore(ctx context.Context, cfg *config.Config, dimension int) (memory.Store, func() error, error) {
	if cfg.Memory.Dimension > 0 {
		dimension = cfg.Memory.Dimension
	}

	switch cfg.Memory.Type {
	case "inmem", "":
		return inmem.NewStore(dimension, cfg.Memory.MaxMemories), nil, nil

	case "chromem":
		db := chromemgo.NewDB()
		store, err := chromemstore.NewStore(db, cfg.Memory.Chromem.Collection, dimension, cfg.Memory.MaxMemories)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case "sqlite":
		store, err := sqlitestore.NewStore(cfg.Memory.SQLite.Path, dimension, cfg.Memory.MaxMemories)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "pgvector":
		store, err := pgvector.NewStore(ctx, pgvector.Config{
			ConnectionString: cfg.Memory.PgVector.ConnectionString,
			TableName:        cfg.Memory.PgVector.TableName,
			Dimension:        dimension,
			MaxMemories:      cfg.Memory.MaxMemories,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { store.Close(); return nil }, nil

	default:
		return nil, nil, errors.Wrap(errors.ErrInvalidInput,
			"unsupported memory store type %q", cfg.Memory.Type)
	}
}

func initProviders(cfg *config.Config) ([]search.Provider, error) {
	names := cfg.Search.Providers
	if len(names) == 0 {
		names = []string{"duckduckgo", "wikipedia"}
	}
	providers := make([]search.Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case "duckduckgo":
			providers = append(providers, duckduckgo.NewProvider(duckduckgo.Config{
				Timeout: cfg.Research.ProviderTimeout.Std(),
				BaseURL: cfg.Search.DuckDuckGo.BaseURL,
			}))
		case "wikipedia":
			providers = append(providers, wikipedia.NewProvider(wikipedia.Config{
				Timeout: cfg.Research.ProviderTimeout.Std(),
				BaseURL: cfg.Search.Wikipedia.BaseURL,
			}))
		case "mock":
			providers = append(providers, searchmock.NewProvider())
		default:
			return nil, errors.Wrap(errors.ErrInvalidInput, "unsupported search provider %q", name)
		}
	}
	return providers, nil
}

func restoreState(persist *state.Store, deps Deps) error {
	topics, err := persist.Topics()
	if err != nil {
		return fmt.Errorf("failed to load persisted topics: %w", err)
	}
	for _, entry := range topics {
		if rerr := deps.Registry.Restore(entry); rerr != nil {
			log.Warn("Skipping invalid persisted topic", "topic", entry.Topic, "error", rerr)
		}
	}

	persistedRules, err := persist.Rules()
	if err != nil {
		return fmt.Errorf("failed to load persisted rules: %w", err)
	}
	for _, rule := range persistedRules {
		if rerr := deps.Rules.Restore(rule); rerr != nil {
			log.Warn("Skipping invalid persisted rule", "rule_id", rule.ID, "error", rerr)
		}
	}

	profiles, err := persist.Profiles()
	if err != nil {
		return fmt.Errorf("failed to load persisted profiles: %w", err)
	}
	for _, profile := range profiles {
		deps.Tracker.RestoreProfile(profile)
	}

	log.Debug("Restored persisted state",
		"topics", len(topics),
		"rules", len(persistedRules),
		"profiles", len(profiles))
	return nil
}
