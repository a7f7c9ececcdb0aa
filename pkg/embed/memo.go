package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/echomind-ai/echomind/pkg/log"
)

// MemoizingEncoder wraps an Encoder with a per-process cache so repeated
// encodes of the same text hit the network (or CPU) only once.
type MemoizingEncoder struct {
	inner Encoder
	cache *ristretto.Cache
}

// NewMemoizing wraps the given encoder with a cache bounded to roughly
// maxEntries texts.
func NewMemoizing(inner Encoder, maxEntries int64) (*MemoizingEncoder, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	log.Debug("Memoizing encoder initialized",
		"max_entries", maxEntries,
		"dimension", inner.Dimension())

	return &MemoizingEncoder{inner: inner, cache: cache}, nil
}

// Encode returns the cached vector for text when present, otherwise encodes
// and caches it. Failed encodes are never cached.
func (m *MemoizingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := m.cache.Get(text); ok {
		if vector, ok := cached.([]float32); ok {
			return vector, nil
		}
	}

	vector, err := m.inner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}

	m.cache.Set(text, vector, 1)
	return vector, nil
}

// Dimension returns the inner encoder's dimensionality.
func (m *MemoizingEncoder) Dimension() int {
	return m.inner.Dimension()
}

// Wait blocks until pending cache writes are applied. Intended for tests.
func (m *MemoizingEncoder) Wait() {
	m.cache.Wait()
}

// Close releases cache resources.
func (m *MemoizingEncoder) Close() {
	m.cache.Close()
}
