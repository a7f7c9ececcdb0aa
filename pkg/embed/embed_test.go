package embed_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/embed"
	"github.com/echomind-ai/echomind/pkg/embed/adapters/local"
)

// countingEncoder wraps an encoder and counts Encode calls.
type countingEncoder struct {
	mu    sync.Mutex
	inner embed.Encoder
	calls int
}

func (c *countingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Encode(ctx, text)
}

func (c *countingEncoder) Dimension() int { return c.inner.Dimension() }

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, embed.CosineSimilarity(a, b), 1e-6)
	assert.InDelta(t, 0.0, embed.CosineSimilarity(a, c), 1e-6)
	assert.Equal(t, 0.0, embed.CosineSimilarity(a, []float32{1, 0}))
	assert.Equal(t, 0.0, embed.CosineSimilarity(nil, nil))
}

func TestLocalEncoderDeterminism(t *testing.T) {
	encoder := local.NewEncoder(64)
	ctx := context.Background()

	first, err := encoder.Encode(ctx, "docker is a container runtime")
	require.NoError(t, err)
	second, err := encoder.Encode(ctx, "docker is a container runtime")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.InDelta(t, 1.0, embed.CosineSimilarity(first, second), 1e-6)
}

func TestLocalEncoderDistinctTexts(t *testing.T) {
	encoder := local.NewEncoder(128)
	ctx := context.Background()

	a, err := encoder.Encode(ctx, "kubernetes orchestration")
	require.NoError(t, err)
	b, err := encoder.Encode(ctx, "sourdough bread recipe")
	require.NoError(t, err)

	assert.Less(t, embed.CosineSimilarity(a, b), 0.5)
}

func TestMemoizingEncoderCachesRepeats(t *testing.T) {
	counting := &countingEncoder{inner: local.NewEncoder(32)}
	memo, err := embed.NewMemoizing(counting, 100)
	require.NoError(t, err)
	defer memo.Close()

	ctx := context.Background()
	first, err := memo.Encode(ctx, "repeated text")
	require.NoError(t, err)
	memo.Wait()

	second, err := memo.Encode(ctx, "repeated text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.calls)
}

func TestMemoizingEncoderDistinctKeys(t *testing.T) {
	counting := &countingEncoder{inner: local.NewEncoder(32)}
	memo, err := embed.NewMemoizing(counting, 100)
	require.NoError(t, err)
	defer memo.Close()

	ctx := context.Background()
	_, err = memo.Encode(ctx, "first")
	require.NoError(t, err)
	_, err = memo.Encode(ctx, "second")
	require.NoError(t, err)

	assert.Equal(t, 2, counting.calls)
	assert.Equal(t, 32, memo.Dimension())
}
