package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/memory"
	"github.com/echomind-ai/echomind/pkg/memory/adapters/sqlite"
)

func newStore(t *testing.T, maxMemories int) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memories.db")
	store, err := sqlite.NewStore(path, 3, maxMemories)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

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
	store := newStore(t, 0)
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
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.db")
	ctx := context.Background()

	store, err := sqlite.NewStore(path, 3, 0)
	require.NoError(t, err)
	_, err = store.Insert(ctx, record("a", "answer a", []float32{1, 0, 0}))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.NewStore(path, 3, 0)
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeactivate(t *testing.T) {
	store := newStore(t, 0)
	ctx := context.Background()

	id, err := store.Insert(ctx, record("a", "a", []float32{1, 0, 0}))
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, id))
	require.NoError(t, store.Deactivate(ctx, id))
	assert.ErrorIs(t, store.Deactivate(ctx, "missing"), errors.ErrNotFound)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCapacity(t *testing.T) {
	store := newStore(t, 1)
	ctx := context.Background()

	_, err := store.Insert(ctx, record("a", "a", []float32{1, 0, 0}))
	require.NoError(t, err)
	_, err = store.Insert(ctx, record("b", "b", []float32{0, 1, 0}))
	assert.ErrorIs(t, err, errors.ErrCapacityExceeded)
}

func TestListActiveFilterAndPaging(t *testing.T) {
	store := newStore(t, 0)
	ctx := context.Background()

	researched := record("a", "researched", []float32{1, 0, 0})
	researched.Category = memory.CategoryResearched
	_, err := store.Insert(ctx, researched)
	require.NoError(t, err)
	_, err = store.Insert(ctx, record("b", "general", []float32{0, 1, 0}))
	require.NoError(t, err)

	records, err := store.ListActive(ctx, &memory.Filter{Category: memory.CategoryResearched}, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "researched", records[0].OutputText)

	page, err := store.ListActive(ctx, nil, 1, 0)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
