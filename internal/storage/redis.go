package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/domain"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Redis wraps the cache client. It backs the embedding cache, the match
// result cache and the candidate profile-vector cache.
type Redis struct {
	Client   *redis.Client
	embedTTL time.Duration
	matchTTL time.Duration
}

// NewRedisAdapter connects, verifies the connection and installs the
// OpenTelemetry hook.
func NewRedisAdapter(ctx context.Context, cfg *config.RedisConfig, embedTTL, matchTTL time.Duration) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("instrument redis tracing: %w", err)
	}
	return &Redis{Client: client, embedTTL: embedTTL, matchTTL: matchTTL}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.Client.Close()
}

// GetEmbedding implements embedding.VectorCache. Misses map to
// domain.ErrNotFound so callers never see redis.Nil.
func (r *Redis) GetEmbedding(ctx context.Context, model, contentHash string) ([]float64, error) {
	key := fmt.Sprintf(constants.KeyEmbeddingCache, model, contentHash)
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding cache: %w", err)
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode cached embedding: %w", err)
	}
	return vec, nil
}

// SetEmbedding implements embedding.VectorCache.
func (r *Redis) SetEmbedding(ctx context.Context, model, contentHash string, vec []float64) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	key := fmt.Sprintf(constants.KeyEmbeddingCache, model, contentHash)
	if err := r.Client.Set(ctx, key, raw, r.embedTTL).Err(); err != nil {
		return fmt.Errorf("set embedding cache: %w", err)
	}
	return nil
}

// GetMatch returns a cached fit result, or domain.ErrNotFound. The cache
// key hash already encodes profile version and job content hash, so a hit
// is always coherent with the inputs it was computed from.
func (r *Redis) GetMatch(ctx context.Context, cacheKey string) (*domain.MatchResult, error) {
	key := fmt.Sprintf(constants.KeyMatchCache, cacheKey)
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get match cache: %w", err)
	}
	var result domain.MatchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode cached match: %w", err)
	}
	return &result, nil
}

// SetMatch caches a fit result.
func (r *Redis) SetMatch(ctx context.Context, cacheKey string, result *domain.MatchResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode match result: %w", err)
	}
	key := fmt.Sprintf(constants.KeyMatchCache, cacheKey)
	if err := r.Client.Set(ctx, key, raw, r.matchTTL).Err(); err != nil {
		return fmt.Errorf("set match cache: %w", err)
	}
	return nil
}

// SetProfileVector stores the most recent successfully embedded profile
// vector. It has no TTL; the degraded scoring path depends on it when the
// live embedding call times out.
func (r *Redis) SetProfileVector(ctx context.Context, candidateID string, vec []float64, modelVersion string) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode profile vector: %w", err)
	}
	key := fmt.Sprintf(constants.KeyProfileVector, candidateID)
	if err := r.Client.HSet(ctx, key, map[string]interface{}{
		"vector":        raw,
		"model_version": modelVersion,
		"updated_at":    time.Now().Unix(),
	}).Err(); err != nil {
		return fmt.Errorf("set profile vector: %w", err)
	}
	return nil
}

// GetProfileVector returns the cached profile vector and the model version
// it was produced with, or domain.ErrNotFound.
func (r *Redis) GetProfileVector(ctx context.Context, candidateID string) ([]float64, string, error) {
	key := fmt.Sprintf(constants.KeyProfileVector, candidateID)
	fields, err := r.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, "", fmt.Errorf("get profile vector: %w", err)
	}
	raw, ok := fields["vector"]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, "", fmt.Errorf("decode profile vector: %w", err)
	}
	return vec, fields["model_version"], nil
}
