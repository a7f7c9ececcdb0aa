// Package chromem backs the memory store with chromem-go, an embedded pure
// Go vector database. The collection only ever holds active records; the
// full record set, including soft-deleted entries, lives in a sidecar index
// so nothing is lost to deactivation.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
	"github.com/echomind-ai/echomind/pkg/memory"
)

// Store implements memory.Store on top of a chromem-go collection.
type Store struct {
	mu          sync.RWMutex
	collection  *chromem.Collection
	records     map[string]memory.Record
	dimension   int
	maxMemories int
}

// NewStore creates a chromem-backed store using the given database and
// collection name.
func NewStore(db *chromem.DB, collectionName string, dimension, maxMemories int) (*Store, error) {
	if collectionName == "" {
		collectionName = "memories"
	}

	// Embeddings are always supplied by the caller, so no embedding
	// function is registered with the collection.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Debug("Initialized chromem store",
		"collection", collectionName,
		"dimension", dimension,
		"max_memories", maxMemories)

	return &Store{
		collection:  collection,
		records:     make(map[string]memory.Record),
		dimension:   dimension,
		maxMemories: maxMemories,
	}, nil
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

	doc := chromem.Document{
		ID:        record.ID,
		Content:   record.InputText,
		Embedding: record.Embedding,
		Metadata: map[string]string{
			"category":   string(record.Category),
			"created_at": strconv.FormatInt(record.CreatedAt.UnixNano(), 10),
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}

	s.records[record.ID] = record
	return record.ID, nil
}

// Query implements memory.Store.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter *memory.Filter) ([]memory.Match, error) {
	if len(vector) != s.dimension {
		return nil, errors.Wrap(errors.ErrDimensionMismatch,
			"expected %d dimensions, got %d", s.dimension, len(vector))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if count == 0 {
		return []memory.Match{}, nil
	}

	// chromem rejects nResults larger than the collection. Over-fetch so a
	// category filter applied afterwards can still fill topK.
	n := count
	var where map[string]string
	if filter != nil && filter.Category != "" {
		where = map[string]string{"category": string(filter.Category)}
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "chromem query failed")
	}

	matches := make([]memory.Match, 0, len(results))
	for _, result := range results {
		record, ok := s.records[result.ID]
		if !ok || !record.Active {
			continue
		}
		matches = append(matches, memory.Match{
			Record:     record,
			Similarity: float64(result.Similarity),
		})
	}

	return memory.RankMatches(matches, topK), nil
}

// Deactivate implements memory.Store. The document leaves the collection so
// searches never see it, but the record itself is retained.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return errors.ErrNotFound
	}
	if !record.Active {
		return nil
	}

	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
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
