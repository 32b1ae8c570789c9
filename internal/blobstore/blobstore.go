// SPDX-License-Identifier: Apache-2.0

// Package blobstore selects and wires the blob backend the archiver writes to.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adiadia/message-archiver/internal/config"
	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/adiadia/message-archiver/internal/persistence/postgres"
	"github.com/adiadia/message-archiver/internal/repository"
)

const maxListLimit = 100

// Backend is implemented by every store: create-or-overwrite writes plus read-back.
type Backend interface {
	Put(ctx context.Context, bucket, object string, data []byte, contentType string) error
	GetBlob(ctx context.Context, bucket, object string) (domain.Blob, error)
	ListBlobs(ctx context.Context, bucket, prefix string, limit int) ([]domain.Blob, error)
}

type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Check(ctx context.Context) error { return f(ctx) }

// Store is an opened backend plus its readiness probe and teardown.
type Store struct {
	Backend
	Name   string
	Health HealthFunc

	closeFn func()
}

func (s *Store) Close() {
	if s != nil && s.closeFn != nil {
		s.closeFn()
	}
}

var ErrUnknownBackend = errors.New("unknown storage backend")

// Open builds the backend named by cfg.StorageBackend. The returned store is
// shared by all invocations for the life of the process.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.StorageBackend {
	case config.BackendGCS, "":
		gcs, err := NewGCSStore(ctx)
		if err != nil {
			return nil, err
		}
		return &Store{
			Backend: gcs,
			Name:    config.BackendGCS,
			Health: func(ctx context.Context) error {
				if cfg.BucketName == "" {
					return domain.ErrBucketNotConfigured
				}
				return gcs.CheckBucket(ctx, cfg.BucketName)
			},
			closeFn: func() {
				if err := gcs.Close(); err != nil {
					logger.Warn("gcs client close failed", "error", err)
				}
			},
		}, nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: connect: %w", err)
		}
		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres: ensure schema: %w", err)
			}
		}
		return &Store{
			Backend: repository.NewBlobRepository(pool, logger),
			Name:    config.BackendPostgres,
			Health:  postgres.NewSchemaHealthChecker(pool).Check,
			closeFn: pool.Close,
		}, nil

	case config.BackendFS:
		fsStore, err := NewFSStore(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return &Store{
			Backend: fsStore,
			Name:    config.BackendFS,
			Health:  fsStore.Check,
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StorageBackend)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
