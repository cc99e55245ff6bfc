package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"jobmatch-go/internal/domain"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

// VectorCache stores embeddings keyed by model and content hash. A miss
// returns domain.ErrNotFound.
type VectorCache interface {
	GetEmbedding(ctx context.Context, model, contentHash string) ([]float64, error)
	SetEmbedding(ctx context.Context, model, contentHash string, vec []float64) error
}

// CachedEmbedder wraps an Embedder with a content-addressed cache. Cache
// hits bypass the provider entirely; identical text always embeds
// identically, so entries only expire to bound storage, never for
// correctness.
type CachedEmbedder struct {
	inner  embedding.Embedder
	cache  VectorCache
	model  string
	logger zerolog.Logger
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with cache.
func NewCachedEmbedder(inner embedding.Embedder, cache VectorCache, model string, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		model:  model,
		logger: logger.With().Str("component", "cached_embedder").Logger(),
	}
}

// ContentHash returns the stable cache key for a text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedStrings implements embedding.Embedder. Only cache misses reach the
// provider; the returned slice is positionally aligned with texts.
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		vec, err := c.cache.GetEmbedding(ctx, c.model, ContentHash(text))
		switch {
		case err == nil && len(vec) > 0:
			out[i] = vec
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			// A broken cache must not take embedding down with it.
			c.logger.Warn().Err(err).Int("index", i).Msg("embedding cache read failed, treating as miss")
			fallthrough
		default:
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
		}
	}

	if len(missTexts) == 0 {
		c.logger.Debug().Int("texts", len(texts)).Msg("embedding cache served all texts")
		return out, nil
	}

	vectors, err := c.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}

	for j, vec := range vectors {
		out[missIdx[j]] = vec
		if err := c.cache.SetEmbedding(ctx, c.model, ContentHash(missTexts[j]), vec); err != nil {
			c.logger.Warn().Err(err).Msg("embedding cache write failed")
		}
	}

	c.logger.Debug().
		Int("texts", len(texts)).
		Int("hits", len(texts)-len(missTexts)).
		Int("misses", len(missTexts)).
		Msg("embedded with cache")
	return out, nil
}
