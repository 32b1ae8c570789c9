// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adiadia/message-archiver/internal/domain"
)

const tempPrefix = ".upload-"

var ErrInvalidName = errors.New("invalid bucket or object name")

// FSStore keeps objects as files under <root>/<bucket>/<object>.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("fs: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("fs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fs: create root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Put writes through a temp file and rename so readers never see a partial object.
func (s *FSStore) Put(ctx context.Context, bucket, object string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst, err := s.objectPath(bucket, object)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fs: create bucket dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("fs: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fs: write %s/%s: %w", bucket, object, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fs: sync %s/%s: %w", bucket, object, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fs: close %s/%s: %w", bucket, object, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("fs: commit %s/%s: %w", bucket, object, err)
	}
	return nil
}

func (s *FSStore) GetBlob(ctx context.Context, bucket, object string) (domain.Blob, error) {
	path, err := s.objectPath(bucket, object)
	if err != nil {
		return domain.Blob{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Blob{}, domain.ErrBlobNotFound
		}
		return domain.Blob{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Blob{}, err
	}

	return domain.Blob{
		Bucket:      bucket,
		Name:        object,
		ContentType: contentTypeFor(object),
		Size:        len(data),
		Data:        data,
		CreatedAt:   info.ModTime().UTC(),
		UpdatedAt:   info.ModTime().UTC(),
	}, nil
}

// ListBlobs returns metadata newest first.
func (s *FSStore) ListBlobs(ctx context.Context, bucket, prefix string, limit int) ([]domain.Blob, error) {
	limit = clampLimit(limit)

	dir, err := s.bucketPath(bucket)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Blob{}, nil
		}
		return nil, err
	}

	out := make([]domain.Blob, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, domain.Blob{
			Bucket:      bucket,
			Name:        name,
			ContentType: contentTypeFor(name),
			Size:        int(info.Size()),
			CreatedAt:   info.ModTime().UTC(),
			UpdatedAt:   info.ModTime().UTC(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name > out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Check verifies the root is still a writable directory.
func (s *FSStore) Check(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("fs: %s is not a directory", s.root)
	}
	return nil
}

func (s *FSStore) bucketPath(bucket string) (string, error) {
	if !validSegment(bucket) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, bucket), nil
}

func (s *FSStore) objectPath(bucket, object string) (string, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	if !validSegment(object) || strings.HasPrefix(object, tempPrefix) {
		return "", ErrInvalidName
	}
	return filepath.Join(dir, object), nil
}

// validSegment accepts a single path element: no separators, no dot names.
func validSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

func contentTypeFor(name string) string {
	if strings.HasSuffix(name, ".json") {
		return domain.ContentTypeJSON
	}
	return "application/octet-stream"
}
