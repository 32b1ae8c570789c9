// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultListLimit = 100

// BlobRepository stores objects in the blobs table, keyed by (bucket, name).
type BlobRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewBlobRepository(pool *pgxpool.Pool, logger *slog.Logger) *BlobRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &BlobRepository{
		pool:   pool,
		logger: logger,
	}
}

// Put creates or overwrites the object.
func (r *BlobRepository) Put(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO blobs (bucket, name, content_type, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bucket, name) DO UPDATE
		SET content_type = EXCLUDED.content_type,
		    data = EXCLUDED.data,
		    updated_at = NOW()
	`,
		bucket,
		object,
		contentType,
		data,
	); err != nil {
		r.logger.Error("put blob failed",
			"bucket", bucket,
			"object", object,
			"error", err,
		)
		return err
	}

	return nil
}

func (r *BlobRepository) GetBlob(ctx context.Context, bucket, object string) (domain.Blob, error) {
	var b domain.Blob
	err := r.pool.QueryRow(ctx, `
		SELECT bucket, name, content_type, data, octet_length(data), created_at, updated_at
		FROM blobs
		WHERE bucket=$1
		  AND name=$2
	`,
		bucket,
		object,
	).Scan(
		&b.Bucket,
		&b.Name,
		&b.ContentType,
		&b.Data,
		&b.Size,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Blob{}, domain.ErrBlobNotFound
		}
		r.logger.Error("get blob failed",
			"bucket", bucket,
			"object", object,
			"error", err,
		)
		return domain.Blob{}, err
	}

	return b, nil
}

// ListBlobs returns metadata only, newest first, optionally filtered by name prefix.
func (r *BlobRepository) ListBlobs(ctx context.Context, bucket, prefix string, limit int) ([]domain.Blob, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT bucket, name, content_type, octet_length(data), created_at, updated_at
		FROM blobs
		WHERE bucket=$1
		  AND starts_with(name, $2)
		ORDER BY created_at DESC, name DESC
		LIMIT $3
	`,
		bucket,
		prefix,
		limit,
	)
	if err != nil {
		r.logger.Error("list blobs query failed", "bucket", bucket, "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Blob, 0, 16)
	for rows.Next() {
		var b domain.Blob
		if err := rows.Scan(
			&b.Bucket,
			&b.Name,
			&b.ContentType,
			&b.Size,
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			r.logger.Error("scan blob row failed", "bucket", bucket, "error", err)
			return nil, err
		}
		out = append(out, b)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("blob rows iteration failed", "bucket", bucket, "error", err)
		return nil, err
	}

	return out, nil
}
