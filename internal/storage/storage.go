// Package storage wires the persistence backends: MySQL for postings and
// runs, Redis for caches, RabbitMQ for run dispatch and MinIO for the raw
// page archive.
package storage

import (
	"context"
	"fmt"

	"jobmatch-go/internal/config"

	"github.com/rs/zerolog"
)

// Storage aggregates the backend adapters. MySQL and Redis are required;
// RabbitMQ and the archive are optional and stay nil when unconfigured,
// the callers degrade accordingly (synchronous runs, no raw archive).
type Storage struct {
	MySQL    *MySQL
	Redis    *Redis
	RabbitMQ *RabbitMQ
	Archive  *Archive
}

// NewStorage initializes every configured backend.
func NewStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Storage, error) {
	s := &Storage{}

	var err error
	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("init mysql: %w", err)
	}

	s.Redis, err = NewRedisAdapter(ctx, &cfg.Redis, cfg.EmbeddingCacheTTL(), cfg.MatchCacheTTL())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
	} else {
		logger.Warn().Msg("rabbitmq not configured, ingestion runs execute synchronously")
	}

	if cfg.MinIO.Endpoint != "" {
		s.Archive, err = NewArchive(ctx, &cfg.MinIO, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("init archive: %w", err)
		}
	} else {
		logger.Warn().Msg("minio not configured, raw pages are not archived")
	}

	return s, nil
}

// Close releases every open backend. Safe on a partially built Storage.
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		_ = s.RabbitMQ.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.MySQL != nil {
		_ = s.MySQL.Close()
	}
}
