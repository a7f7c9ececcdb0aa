package learner

import (
	"context"
	"sync"
	"time"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
)

// Researcher performs a research run for a topic and reports how many new
// facts were merged into memory.
type Researcher interface {
	Research(ctx context.Context, topic string) (int, error)
}

// Clock abstracts time for the scheduler so tests can drive it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the real clock.
func SystemClock() Clock { return systemClock{} }

// Config contains the configuration for the auto-learner.
type Config struct {
	// Tick is how often the scheduler looks for due topics.
	Tick time.Duration

	// DefaultInterval is the research interval for curated topics.
	DefaultInterval time.Duration

	// DiscoveredInterval replaces a discovered topic's interval after its
	// first completed research run.
	DiscoveredInterval time.Duration

	// MaxConcurrent caps simultaneous research runs.
	MaxConcurrent int

	// StaleRunningTimeout is how long a topic may sit in the running state
	// before it is assumed orphaned and recovered.
	StaleRunningTimeout time.Duration
}

// DefaultConfig returns a default auto-learner configuration.
func DefaultConfig() Config {
	return Config{
		Tick:                time.Minute,
		DefaultInterval:     24 * time.Hour,
		DiscoveredInterval:  168 * time.Hour,
		MaxConcurrent:       2,
		StaleRunningTimeout: 30 * time.Minute,
	}
}

// Stats is a snapshot of scheduler activity.
type Stats struct {
	Enabled       bool `json:"enabled"`
	TotalTopics   int  `json:"total_topics"`
	PendingTopics int  `json:"pending_topics"`
	RunningTopics int  `json:"running_topics"`
	TotalRuns     int  `json:"total_runs"`
	FactsLearned  int  `json:"facts_learned"`

	// LastRuns maps each topic that has completed at least one research run
	// to its last completion time.
	LastRuns map[string]time.Time `json:"last_runs,omitempty"`

	// DiscoveredTopics maps discovered (not curated) topics to their mention
	// counts.
	DiscoveredTopics map[string]int `json:"discovered_topics,omitempty"`
}

// AutoLearner drives periodic research over the topic registry.
type AutoLearner struct {
	registry   *Registry
	researcher Researcher
	clock      Clock
	config     Config

	mu      sync.Mutex
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}
	slots   chan struct{}
	wg      sync.WaitGroup
}

// NewAutoLearner creates a scheduler over the given registry and researcher.
func NewAutoLearner(registry *Registry, researcher Researcher, clock Clock, config Config) (*AutoLearner, error) {
	if registry == nil || researcher == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "auto-learner requires a registry and researcher")
	}
	if clock == nil {
		clock = SystemClock()
	}
	defaults := DefaultConfig()
	if config.Tick <= 0 {
		config.Tick = defaults.Tick
	}
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = defaults.DefaultInterval
	}
	if config.DiscoveredInterval <= 0 {
		config.DiscoveredInterval = defaults.DiscoveredInterval
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.StaleRunningTimeout <= 0 {
		config.StaleRunningTimeout = defaults.StaleRunningTimeout
	}

	return &AutoLearner{
		registry:   registry,
		researcher: researcher,
		clock:      clock,
		config:     config,
		slots:      make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// AddTopic registers a curated topic at the default interval.
func (a *AutoLearner) AddTopic(topic string) error {
	return a.registry.Add(topic, SourceCurated, a.config.DefaultInterval)
}

// AddDiscoveredTopic registers a promoted topic. It is due immediately; its
// interval stretches to the discovered interval after the first run.
func (a *AutoLearner) AddDiscoveredTopic(ctx context.Context, topic string) error {
	err := a.registry.Add(topic, SourceDiscovered, a.config.DefaultInterval)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "Scheduled discovered topic", "topic", topic)
	return nil
}

// RemoveTopic drops a topic from scheduling.
func (a *AutoLearner) RemoveTopic(topic string) error {
	return a.registry.Remove(topic)
}

// Topics returns the current topic entries.
func (a *AutoLearner) Topics() []TopicEntry {
	return a.registry.List()
}

// Enabled reports whether the scheduler loop is active.
func (a *AutoLearner) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Enable starts the scheduler loop. Enabling an already enabled learner is
// a no-op.
func (a *AutoLearner) Enable(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.enabled = true
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(loopCtx, a.done)
	log.Info("Auto-learning enabled", "tick", a.config.Tick.String())
}

// Disable stops the scheduler loop and waits for in-flight research to
// finish. Disabling an already disabled learner is a no-op.
func (a *AutoLearner) Disable() {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return
	}
	a.enabled = false
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	cancel()
	<-done
	a.wg.Wait()
	log.Info("Auto-learning disabled")
}

func (a *AutoLearner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.config.Tick)
	defer ticker.Stop()

	// Run once immediately so freshly added topics are not held for a tick.
	a.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scheduling pass: recover stale runs, then start
// research for due topics up to the concurrency cap. It does not wait for
// the started runs to finish.
func (a *AutoLearner) RunOnce(ctx context.Context) {
	now := a.clock.Now()

	for _, topic := range a.registry.recoverStale(now, a.config.StaleRunningTimeout) {
		log.Warn("Recovered stale research run",
			"topic", topic,
			"error", errors.ErrStaleRunning.Error())
	}

	for _, entry := range a.registry.due(now) {
		select {
		case <-ctx.Done():
			return
		case a.slots <- struct{}{}:
		default:
			// All slots are busy; wait for the next tick.
			return
		}

		if !a.registry.claim(entry.Topic, now) {
			<-a.slots
			continue
		}

		a.wg.Add(1)
		go func(topic string) {
			defer a.wg.Done()
			defer func() { <-a.slots }()
			a.research(ctx, topic)
		}(entry.Topic)
	}
}

func (a *AutoLearner) research(ctx context.Context, topic string) {
	start := a.clock.Now()
	facts, err := a.researcher.Research(ctx, topic)
	if err != nil {
		a.registry.release(topic)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Debug("Research cancelled", "topic", topic)
			return
		}
		log.Error("Research failed", "topic", topic, "error", err)
		return
	}
	a.registry.finish(topic, a.clock.Now(), facts, a.config.DiscoveredInterval)
	log.Info("Research complete",
		"topic", topic,
		"facts", facts,
		"duration", a.clock.Now().Sub(start).String())
}

// ResearchTopic runs research for one topic immediately, outside the tick
// loop. The registry's claim transition still applies, so a topic that is
// already being researched fails instead of running twice.
func (a *AutoLearner) ResearchTopic(ctx context.Context, topic string) (int, error) {
	if !a.registry.claim(topic, a.clock.Now()) {
		return 0, errors.Wrap(errors.ErrInvalidInput, "topic %q is not in a runnable state", topic)
	}
	facts, err := a.researcher.Research(ctx, topic)
	if err != nil {
		a.registry.release(topic)
		return 0, err
	}
	a.registry.finish(topic, a.clock.Now(), facts, a.config.DiscoveredInterval)
	return facts, nil
}

// Wait blocks until all in-flight research runs have finished. Intended for
// tests and shutdown paths.
func (a *AutoLearner) Wait() {
	a.wg.Wait()
}

// Stats summarizes scheduler state.
func (a *AutoLearner) Stats() Stats {
	entries := a.registry.List()
	stats := Stats{
		Enabled:          a.Enabled(),
		TotalTopics:      len(entries),
		LastRuns:         make(map[string]time.Time),
		DiscoveredTopics: make(map[string]int),
	}
	for _, entry := range entries {
		switch entry.Status {
		case StatusPending:
			stats.PendingTopics++
		case StatusRunning:
			stats.RunningTopics++
		}
		stats.TotalRuns += entry.RunCount
		stats.FactsLearned += entry.FactsLearned
		if !entry.LastRun.IsZero() {
			stats.LastRuns[entry.Topic] = entry.LastRun
		}
		if entry.Source == SourceDiscovered {
			stats.DiscoveredTopics[entry.Topic] = entry.MentionCount
		}
	}
	return stats
}
