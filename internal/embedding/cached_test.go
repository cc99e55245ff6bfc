package embedding

import (
	"context"
	"fmt"
	"testing"

	"jobmatch-go/internal/domain"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorCache struct {
	entries map[string][]float64
	getErr  error
	setErr  error
	sets    int
}

func newFakeVectorCache() *fakeVectorCache {
	return &fakeVectorCache{entries: make(map[string][]float64)}
}

func (f *fakeVectorCache) GetEmbedding(ctx context.Context, model, contentHash string) ([]float64, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if vec, ok := f.entries[model+":"+contentHash]; ok {
		return vec, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeVectorCache) SetEmbedding(ctx context.Context, model, contentHash string, vec []float64) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[model+":"+contentHash] = vec
	return nil
}

type countingInner struct {
	calls    int
	received [][]string
	err      error
}

func (c *countingInner) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	c.calls++
	c.received = append(c.received, texts)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = []float64{float64(len(text))}
	}
	return out, nil
}

const testModel = "text-embedding-3-small"

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash("hello"))
	assert.NotEqual(t, a, ContentHash("hello "))
}

func TestCachedEmbedderHitSkipsProvider(t *testing.T) {
	cache := newFakeVectorCache()
	cache.entries[testModel+":"+ContentHash("cached text")] = []float64{42}
	inner := &countingInner{}
	embedder := NewCachedEmbedder(inner, cache, testModel, zerolog.Nop())

	vecs, err := embedder.EmbedStrings(context.Background(), []string{"cached text"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{42}}, vecs)
	assert.Equal(t, 0, inner.calls)
}

func TestCachedEmbedderMixedHitMissAlignment(t *testing.T) {
	cache := newFakeVectorCache()
	cache.entries[testModel+":"+ContentHash("bb")] = []float64{42}
	inner := &countingInner{}
	embedder := NewCachedEmbedder(inner, cache, testModel, zerolog.Nop())

	vecs, err := embedder.EmbedStrings(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {42}, {3}}, vecs)
	require.Equal(t, 1, inner.calls)
	assert.Equal(t, []string{"a", "ccc"}, inner.received[0], "only misses reach the provider")

	// Misses are written back for next time.
	assert.Contains(t, cache.entries, testModel+":"+ContentHash("a"))
	assert.Contains(t, cache.entries, testModel+":"+ContentHash("ccc"))
}

func TestCachedEmbedderCacheReadFailureFallsThrough(t *testing.T) {
	cache := newFakeVectorCache()
	cache.getErr = fmt.Errorf("redis: connection refused")
	inner := &countingInner{}
	embedder := NewCachedEmbedder(inner, cache, testModel, zerolog.Nop())

	vecs, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	require.NoError(t, err, "a broken cache must not break embedding")
	assert.Equal(t, [][]float64{{4}}, vecs)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedderCacheWriteFailureIgnored(t *testing.T) {
	cache := newFakeVectorCache()
	cache.setErr = fmt.Errorf("redis: connection refused")
	inner := &countingInner{}
	embedder := NewCachedEmbedder(inner, cache, testModel, zerolog.Nop())

	vecs, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4}}, vecs)
	assert.Equal(t, 1, cache.sets)
}

func TestCachedEmbedderPropagatesProviderError(t *testing.T) {
	inner := &countingInner{err: &domain.TransientProviderError{Op: "embedding.request", Err: fmt.Errorf("503")}}
	embedder := NewCachedEmbedder(inner, newFakeVectorCache(), testModel, zerolog.Nop())

	_, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestCachedEmbedderEmptyInput(t *testing.T) {
	inner := &countingInner{}
	embedder := NewCachedEmbedder(inner, newFakeVectorCache(), testModel, zerolog.Nop())
	vecs, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, 0, inner.calls)
}
