package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/inmem"
)

func record(input, output string, vec []float32) memory.Record {
	return memory.Record{
		InputText:  input,
		OutputText: output,
		Category:   memory.CategoryGeneral,
		Embedding:  vec,
		Confidence: 1.0,
	}
}

func TestInsertAndQuery(t *testing.T) {
	store := inmem.NewStore(3, 0)
	ctx := context.Background()

	_, err := store.Insert(ctx, record("a", "answer a", []float32{1, 0, 0}))
	require.NoError(t, err)
	_, err = store.Insert(ctx, record("b", "answer b", []float32{0, 1, 0}))
	require.NoError(t, err)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "answer a", matches[0].Record.OutputText)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestInsertValidation(t *testing.T) {
	store := inmem.NewStore(3, 0)
	ctx := context.Background()

	_, err := store.Insert(ctx, record("", "output", []float32{1, 0, 0}))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = store.Insert(ctx, record("input", "output", []float32{1, 0}))
	assert.ErrorIs(t, err, errors.ErrDimensionMismatch)

	bad := record("input", "output", []float32{1, 0, 0})
	bad.Category = "nonsense"
	_, err = store.Insert(ctx, bad)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestCapacityCountsOnlyActive(t *testing.T) {
	store := inmem.NewStore(3, 2)
	ctx := context.Background()

	id, err := store.Insert(ctx, record("a", "a", []float32{1, 0, 0}))
	require.NoError(t, err)
	_, err = store.Insert(ctx, record("b", "b", []float32{0, 1, 0}))
	require.NoError(t, err)

	_, err = store.Insert(ctx, record("c", "c", []float32{0, 0, 1}))
	assert.ErrorIs(t, err, errors.ErrCapacityExceeded)

	// Deactivating frees a slot.
	require.NoError(t, store.Deactivate(ctx, id))
	_, err = store.Insert(ctx, record("c", "c", []float32{0, 0, 1}))
	assert.NoError(t, err)
}

func TestDeactivate(t *testing.T) {
	store := inmem.NewStore(3, 0)
	ctx := context.Background()

	id, err := store.Insert(ctx, record("a", "a", []float32{1, 0, 0}))
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, id))
	// Repeated deactivation of a known record is a no-op.
	require.NoError(t, store.Deactivate(ctx, id))
	assert.ErrorIs(t, store.Deactivate(ctx, "missing"), errors.ErrNotFound)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	count, err := store.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestQueryTieBreaksNewestFirst(t *testing.T) {
	store := inmem.NewStore(3, 0)
	ctx := context.Background()

	older := record("old", "old answer", []float32{1, 0, 0})
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	_, err := store.Insert(ctx, older)
	require.NoError(t, err)

	newer := record("new", "new answer", []float32{1, 0, 0})
	newer.CreatedAt = time.Now().UTC()
	_, err = store.Insert(ctx, newer)
	require.NoError(t, err)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "new answer", matches[0].Record.OutputText)
}

func TestQueryCategoryFilter(t *testing.T) {
	store := inmem.NewStore(3, 0)
	ctx := context.Background()

	researched := record("a", "researched", []float32{1, 0, 0})
	researched.Category = memory.CategoryResearched
	_, err := store.Insert(ctx, researched)
	require.NoError(t, err)
	_, err = store.Insert(ctx, record("b", "general", []float32{1, 0, 0}))
	require.NoError(t, err)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, &memory.Filter{Category: memory.CategoryResearched})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "researched", matches[0].Record.OutputText)
}

func TestListActivePaging(t *testing.T) {
	store := inmem.NewStore(3, 0)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, name := range []string{"first", "second", "third"} {
		rec := record(name, name, []float32{1, 0, 0})
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Insert(ctx, rec)
		require.NoError(t, err)
	}

	page, err := store.ListActive(ctx, nil, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "third", page[0].InputText)
	assert.Equal(t, "second", page[1].InputText)

	rest, err := store.ListActive(ctx, nil, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "first", rest[0].InputText)
}
