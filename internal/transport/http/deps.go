// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/adiadia/message-archiver/internal/persister"
)

type MessageProcessor interface {
	Process(ctx context.Context, event domain.InboundEvent, bucket string) (persister.Result, error)
}

type BlobReader interface {
	GetBlob(ctx context.Context, bucket, object string) (domain.Blob, error)
	ListBlobs(ctx context.Context, bucket, prefix string, limit int) ([]domain.Blob, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
