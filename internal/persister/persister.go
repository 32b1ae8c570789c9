// SPDX-License-Identifier: Apache-2.0

// Package persister turns one inbound Pub/Sub message into one JSON object in a blob store.
package persister

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/adiadia/message-archiver/internal/metrics"
)

// Sink is the narrow blob-store contract the persister depends on.
// Put creates or overwrites the named object.
type Sink interface {
	Put(ctx context.Context, bucket, object string, data []byte, contentType string) error
}

type Deps struct {
	Sink   Sink
	Logger *slog.Logger
	Now    func() time.Time
}

// Persister is safe for concurrent use. It keeps no per-message state.
type Persister struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
	encode func(domain.PersistedRecord) ([]byte, error)
}

func New(deps Deps) *Persister {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Persister{
		sink:   deps.Sink,
		logger: l,
		now:    now,
		encode: marshalRecord,
	}
}

// Result describes a successful write.
type Result struct {
	Bucket    string
	Object    string
	MessageID string
	Bytes     int
}

// Location is the bucket/object path of the written record.
func (r Result) Location() string {
	return r.Bucket + "/" + r.Object
}

// Process decodes, enriches and uploads one event. Every failure is logged
// and returned as a ConfigurationError, DecodeError or StorageError.
func (p *Persister) Process(ctx context.Context, event domain.InboundEvent, bucket string) (Result, error) {
	if strings.TrimSpace(bucket) == "" {
		err := &domain.ConfigurationError{Err: domain.ErrBucketNotConfigured}
		p.fail(metrics.ResultConfigError, err)
		return Result{}, err
	}

	msg := event.RawMessage()

	text, err := decodePayload(msg.Data)
	if err != nil {
		p.fail(metrics.ResultDecodeError, err, "message_id", msg.ID())
		return Result{}, err
	}
	metrics.ObservePayloadBytes(len(text))

	capturedAt := p.now().UTC()
	object := domain.ObjectName(capturedAt, msg.ID())

	record := domain.PersistedRecord{
		Timestamp:   domain.RecordTimestamp(capturedAt),
		MessageID:   msg.ID(),
		Message:     text,
		Attributes:  msg.AttributeMap(),
		PublishTime: msg.PublishTime,
	}

	body, err := p.encode(record)
	if err != nil {
		err = fmt.Errorf("marshal record: %w", err)
		p.fail(metrics.ResultEncodeError, err, "message_id", msg.ID())
		return Result{}, err
	}

	started := time.Now()
	putErr := p.sink.Put(ctx, bucket, object, body, domain.ContentTypeJSON)
	metrics.ObserveUploadDuration(time.Since(started), putErr != nil)
	if putErr != nil {
		err := &domain.StorageError{Bucket: bucket, Object: object, Err: putErr}
		p.fail(metrics.ResultStoreError, err, "message_id", msg.ID())
		return Result{}, err
	}

	res := Result{
		Bucket:    bucket,
		Object:    object,
		MessageID: msg.ID(),
		Bytes:     len(body),
	}

	metrics.IncMessagesProcessed(metrics.ResultSuccess)
	p.logger.Info("Message saved: "+res.Location(),
		"bucket", bucket,
		"object", object,
		"message_id", res.MessageID,
	)

	return res, nil
}

func (p *Persister) fail(result string, err error, attrs ...any) {
	metrics.IncMessagesProcessed(result)
	p.logger.Error(fmt.Sprintf("Error processing message: %v", err), append(attrs, "error", err)...)
}

func decodePayload(data string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", &domain.DecodeError{Stage: domain.DecodeStageBase64, Err: err}
	}
	if !utf8.Valid(raw) {
		return "", &domain.DecodeError{Stage: domain.DecodeStageUTF8, Err: domain.ErrInvalidUTF8}
	}
	return string(raw), nil
}

func marshalRecord(record domain.PersistedRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
