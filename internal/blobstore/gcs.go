// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/adiadia/message-archiver/internal/domain"
	"google.golang.org/api/iterator"
)

// GCSStore writes objects to Google Cloud Storage. STORAGE_EMULATOR_HOST is
// honoured by the client library.
type GCSStore struct {
	client *storage.Client
}

func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Put uploads data in a single request, replacing any existing object.
func (s *GCSStore) Put(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	// messages are capped at 10 MiB; skip the resumable session
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: finalize %s/%s: %w", bucket, object, err)
	}
	return nil
}

func (s *GCSStore) GetBlob(ctx context.Context, bucket, object string) (domain.Blob, error) {
	obj := s.client.Bucket(bucket).Object(object)

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return domain.Blob{}, domain.ErrBlobNotFound
		}
		return domain.Blob{}, fmt.Errorf("gcs: open %s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("gcs: read %s/%s: %w", bucket, object, err)
	}

	return domain.Blob{
		Bucket:      bucket,
		Name:        object,
		ContentType: r.Attrs.ContentType,
		Size:        len(data),
		Data:        data,
		CreatedAt:   r.Attrs.LastModified,
		UpdatedAt:   r.Attrs.LastModified,
	}, nil
}

// ListBlobs returns object metadata in name order, which for message_* objects is
// chronological.
func (s *GCSStore) ListBlobs(ctx context.Context, bucket, prefix string, limit int) ([]domain.Blob, error) {
	limit = clampLimit(limit)

	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := make([]domain.Blob, 0, 16)
	for len(out) < limit {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs: list %s: %w", bucket, err)
		}
		out = append(out, domain.Blob{
			Bucket:      attrs.Bucket,
			Name:        attrs.Name,
			ContentType: attrs.ContentType,
			Size:        int(attrs.Size),
			CreatedAt:   attrs.Created,
			UpdatedAt:   attrs.Updated,
		})
	}
	return out, nil
}

// CheckBucket verifies the bucket exists and is reachable with the current credentials.
func (s *GCSStore) CheckBucket(ctx context.Context, bucket string) error {
	if _, err := s.client.Bucket(bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs: bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
