// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	embeddedmigrations "github.com/adiadia/message-archiver/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaMigrationLockID int64 = 0x4152435f4d494752 // "ARC_MIGR"

// requiredColumns lists what the blob sink reads and writes, keyed by table.
var requiredColumns = map[string][]string{
	"blobs": {"bucket", "name", "content_type", "data", "created_at", "updated_at"},
}

// Migrator applies the embedded SQL files in name order, once each.
type Migrator struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewMigrator(pool *pgxpool.Pool, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{pool: pool, logger: logger}
}

// EnsureSchema applies pending migrations and verifies the result.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}
	return NewMigrator(pool, logger).Apply(ctx)
}

// Pending returns the names of embedded migrations not yet recorded as applied.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	files, err := embeddedmigrations.Ordered()
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	applied, err := m.appliedSet(ctx, m.pool)
	if err != nil {
		return nil, err
	}

	pending := make([]string, 0, len(files))
	for _, f := range files {
		if !applied[f.Name] {
			pending = append(pending, f.Name)
		}
	}
	return pending, nil
}

func (m *Migrator) Apply(ctx context.Context) error {
	started := time.Now()

	files, err := embeddedmigrations.Ordered()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no embedded migrations found")
	}

	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection for migrations: %w", err)
	}
	defer conn.Release()

	// Session-level lock so concurrent instances starting together apply each file once.
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); err != nil {
			m.logger.Error("migration unlock failed", "error", err)
		}
	}()

	applied, err := m.appliedSet(ctx, conn)
	if err != nil {
		return err
	}

	count := 0
	for _, f := range files {
		if applied[f.Name] {
			continue
		}

		m.logger.Info("applying migration", "file", f.Name)
		if err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, f.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, f.Name)
			return err
		}); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
		count++
	}

	m.logger.Info("migrations complete",
		"applied", count,
		"total", len(files),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return SchemaReady(ctx, m.pool)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (m *Migrator) appliedSet(ctx context.Context, q querier) (map[string]bool, error) {
	if _, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

// SchemaReady reports the first missing table or column the sink depends on.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	var missing []string
	for table, columns := range requiredColumns {
		rows, err := pool.Query(ctx, `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = 'public'
			  AND table_name = $1
		`, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		present, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan columns of %s: %w", table, err)
		}
		if len(present) == 0 {
			missing = append(missing, table)
			continue
		}
		missing = append(missing, missingColumns(table, columns, present)...)
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema not ready, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func missingColumns(table string, want, present []string) []string {
	have := make(map[string]struct{}, len(present))
	for _, c := range present {
		have[c] = struct{}{}
	}

	var out []string
	for _, c := range want {
		if _, ok := have[c]; !ok {
			out = append(out, table+"."+c)
		}
	}
	return out
}

// SchemaHealthChecker adapts SchemaReady to the readiness probe.
type SchemaHealthChecker struct {
	pool *pgxpool.Pool
}

func NewSchemaHealthChecker(pool *pgxpool.Pool) *SchemaHealthChecker {
	return &SchemaHealthChecker{pool: pool}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.pool)
}
