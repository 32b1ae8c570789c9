// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/adiadia/message-archiver/internal/envelope"
	"github.com/adiadia/message-archiver/internal/persister"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type MessageProcessor interface {
	Process(ctx context.Context, event domain.InboundEvent, bucket string) (persister.Result, error)
}

// Msg is the part of jetstream.Msg the worker needs.
type Msg interface {
	Data() []byte
	Headers() nats.Header
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

type Deps struct {
	Processor MessageProcessor
	Logger    *slog.Logger
	Bucket    string
	NakDelay  time.Duration
}

type Worker struct {
	processor MessageProcessor
	logger    *slog.Logger
	bucket    string
	nakDelay  time.Duration
}

func New(deps Deps) *Worker {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	delay := deps.NakDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return &Worker{
		processor: deps.Processor,
		logger:    l,
		bucket:    deps.Bucket,
		nakDelay:  delay,
	}
}

// Handle persists one JetStream message. Success acks; processing failures nak
// so the stream redelivers up to MaxDeliver. Bodies that are not envelopes are
// terminated since redelivery cannot fix them.
func (w *Worker) Handle(ctx context.Context, msg Msg) error {
	attempt := uint64(0)
	if md, err := msg.Metadata(); err == nil && md != nil {
		attempt = md.NumDelivered
	}

	event, err := envelope.Parse(msg.Data(), msg.Headers().Get("Content-Type"))
	if err != nil {
		w.logger.Error("Error processing message: "+err.Error(),
			"subject", msg.Subject(),
			"attempt", attempt,
		)
		if termErr := msg.Term(); termErr != nil {
			w.logger.Warn("term failed", "subject", msg.Subject(), "error", termErr)
		}
		return err
	}
	applyHeaderDefaults(&event, msg.Headers())

	res, err := w.processor.Process(ctx, event, w.bucket)
	if err != nil {
		if nakErr := msg.NakWithDelay(w.nakDelay); nakErr != nil {
			w.logger.Warn("nak failed", "subject", msg.Subject(), "error", nakErr)
		}
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			w.logger.Error("worker misconfigured", "error", err)
		}
		return err
	}

	if err := msg.Ack(); err != nil {
		// The object is written; a redelivery would write a second copy.
		w.logger.Warn("ack failed after save",
			"subject", msg.Subject(),
			"location", res.Location(),
			"error", err,
		)
		return err
	}

	w.logger.Debug("message acked",
		"subject", msg.Subject(),
		"location", res.Location(),
		"attempt", attempt,
	)
	return nil
}

// applyHeaderDefaults fills the message id from the JetStream dedup header when
// the envelope itself has none.
func applyHeaderDefaults(event *domain.InboundEvent, headers nats.Header) {
	id := headers.Get(jetstream.MsgIDHeader)
	if id == "" {
		return
	}
	if event.Message == nil {
		event.Message = &domain.RawMessage{}
	}
	if event.Message.MessageID == "" {
		event.Message.MessageID = id
	}
}
