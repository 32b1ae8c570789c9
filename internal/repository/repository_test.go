// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestNewBlobRepository(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var pool *pgxpool.Pool

	repo := NewBlobRepository(pool, logger)
	if repo == nil {
		t.Fatal("expected blob repository instance")
	}
	if repo.pool != pool {
		t.Fatal("expected pool reference to be preserved")
	}
	if repo.logger != logger {
		t.Fatal("expected logger reference to be preserved")
	}
}

func TestNewBlobRepositoryDefaultLogger(t *testing.T) {
	repo := NewBlobRepository(nil, nil)
	if repo.logger == nil {
		t.Fatal("expected default logger")
	}
}
