// Package inmem provides the in-process memory store. It is the default
// backend: a mutex-guarded map with cosine ranking computed in Go.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
)

// Store implements memory.Store entirely in process memory.
type Store struct {
	mu          sync.RWMutex
	records     map[string]memory.Record
	dimension   int
	maxMemories int
}

// NewStore creates an in-memory store with a fixed embedding dimension and
// a capacity limit on active records.
func NewStore(dimension, maxMemories int) *Store {
	log.Debug("Initialized in-memory store",
		"dimension", dimension,
		"max_memories", maxMemories)

	return &Store{
		records:     make(map[string]memory.Record),
		dimension:   dimension,
		maxMemories: maxMemories,
	}
}

// Insert implements memory.Store.
func (s *Store) Insert(ctx context.Context, record memory.Record) (string, error) {
	if record.InputText == "" || record.OutputText == "" {
		return "", errors.ErrInvalidInput
	}
	if len(record.Embedding) != s.dimension {
		return "", errors.Wrap(errors.ErrDimensionMismatch,
			"expected %d dimensions, got %d", s.dimension, len(record.Embedding))
	}
	if record.Category == "" {
		record.Category = memory.CategoryGeneral
	}
	if !memory.ValidCategory(record.Category) {
		return "", errors.Wrap(errors.ErrInvalidInput, "unregistered category %q", record.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxMemories > 0 && s.activeCountLocked() >= s.maxMemories {
		return "", errors.ErrCapacityExceeded
	}

	record.ID = uuid.New().String()
	record.Active = true
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.records[record.ID] = record

	log.DebugContext(ctx, "Memory stored",
		"memory_id", record.ID,
		"category", record.Category)

	return record.ID, nil
}

// Query implements memory.Store.
func (s *Store) Query(_ context.Context, vector []float32, topK int, filter *memory.Filter) ([]memory.Match, error) {
	if len(vector) != s.dimension {
		return nil, errors.Wrap(errors.ErrDimensionMismatch,
			"expected %d dimensions, got %d", s.dimension, len(vector))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]memory.Match, 0, len(s.records))
	for _, record := range s.records {
		if !record.Active {
			continue
		}
		if filter != nil && filter.Category != "" && record.Category != filter.Category {
			continue
		}
		matches = append(matches, memory.Match{
			Record:     record,
			Similarity: memory.Similarity(vector, record.Embedding),
		})
	}

	return memory.RankMatches(matches, topK), nil
}

// Deactivate implements memory.Store.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return errors.ErrNotFound
	}
	if !record.Active {
		// Already deactivated; the operation is idempotent.
		return nil
	}

	record.Active = false
	s.records[id] = record

	log.DebugContext(ctx, "Memory deactivated", "memory_id", id)
	return nil
}

// ListActive implements memory.Store.
func (s *Store) ListActive(_ context.Context, filter *memory.Filter, limit, offset int) ([]memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]memory.Record, 0, len(s.records))
	for _, record := range s.records {
		if !record.Active {
			continue
		}
		if filter != nil && filter.Category != "" && record.Category != filter.Category {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if offset >= len(records) {
		return []memory.Record{}, nil
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CountActive implements memory.Store.
func (s *Store) CountActive(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCountLocked(), nil
}

// Dimension implements memory.Store.
func (s *Store) Dimension() int {
	return s.dimension
}

func (s *Store) activeCountLocked() int {
	count := 0
	for _, record := range s.records {
		if record.Active {
			count++
		}
	}
	return count
}
