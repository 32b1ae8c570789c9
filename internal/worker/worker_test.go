// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adiadia/message-archiver/internal/config"
	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/adiadia/message-archiver/internal/persister"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type fakeMsg struct {
	data    []byte
	headers nats.Header
	meta    *jetstream.MsgMetadata

	acked   bool
	nakked  bool
	nakWait time.Duration
	termed  bool
	ackErr  error
}

func (m *fakeMsg) Data() []byte         { return m.data }
func (m *fakeMsg) Headers() nats.Header { return m.headers }
func (m *fakeMsg) Subject() string      { return "messages.test" }

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	if m.meta == nil {
		return nil, errors.New("no metadata")
	}
	return m.meta, nil
}

func (m *fakeMsg) Ack() error {
	m.acked = true
	return m.ackErr
}

func (m *fakeMsg) NakWithDelay(delay time.Duration) error {
	m.nakked = true
	m.nakWait = delay
	return nil
}

func (m *fakeMsg) Term() error {
	m.termed = true
	return nil
}

type fakeProcessor struct {
	err    error
	calls  int
	event  domain.InboundEvent
	bucket string
}

func (p *fakeProcessor) Process(ctx context.Context, event domain.InboundEvent, bucket string) (persister.Result, error) {
	p.calls++
	p.event = event
	p.bucket = bucket
	if p.err != nil {
		return persister.Result{}, p.err
	}
	return persister.Result{Bucket: bucket, Object: "message_x_" + event.RawMessage().ID() + ".json"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const envelopeBody = `{"message":{"data":"aGVsbG8=","messageId":"m-1","attributes":{"k":"v"}},"subscription":"s"}`

func TestNewDefaults(t *testing.T) {
	w := New(Deps{})
	if w.logger == nil {
		t.Fatal("expected default logger")
	}
	if w.nakDelay != 5*time.Second {
		t.Fatalf("expected default nak delay 5s, got %s", w.nakDelay)
	}
}

func TestHandleSuccessAcks(t *testing.T) {
	proc := &fakeProcessor{}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "archive"})
	msg := &fakeMsg{data: []byte(envelopeBody), meta: &jetstream.MsgMetadata{NumDelivered: 1}}

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !msg.acked || msg.nakked || msg.termed {
		t.Fatalf("expected ack only, got ack=%v nak=%v term=%v", msg.acked, msg.nakked, msg.termed)
	}
	if proc.bucket != "archive" {
		t.Fatalf("expected bucket archive, got %q", proc.bucket)
	}
	if got := proc.event.RawMessage().MessageID; got != "m-1" {
		t.Fatalf("expected message id m-1, got %q", got)
	}
}

func TestHandleProcessFailureNaks(t *testing.T) {
	proc := &fakeProcessor{err: &domain.StorageError{Bucket: "b", Object: "o", Err: errors.New("down")}}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "b", NakDelay: 250 * time.Millisecond})
	msg := &fakeMsg{data: []byte(envelopeBody)}

	err := w.Handle(context.Background(), msg)
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if msg.acked || !msg.nakked {
		t.Fatalf("expected nak without ack, got ack=%v nak=%v", msg.acked, msg.nakked)
	}
	if msg.nakWait != 250*time.Millisecond {
		t.Fatalf("expected nak delay 250ms, got %s", msg.nakWait)
	}
}

func TestHandleDecodeFailureNaks(t *testing.T) {
	proc := &fakeProcessor{err: &domain.DecodeError{Stage: domain.DecodeStageBase64, Err: errors.New("bad")}}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "b"})
	msg := &fakeMsg{data: []byte(envelopeBody)}

	if err := w.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error")
	}
	if !msg.nakked || msg.termed {
		t.Fatalf("expected nak, got nak=%v term=%v", msg.nakked, msg.termed)
	}
}

func TestHandleMalformedEnvelopeTerms(t *testing.T) {
	proc := &fakeProcessor{}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "b"})
	msg := &fakeMsg{data: []byte("not json")}

	err := w.Handle(context.Background(), msg)
	var envErr *domain.EnvelopeError
	if !errors.As(err, &envErr) {
		t.Fatalf("expected EnvelopeError, got %v", err)
	}
	if !msg.termed || msg.acked || msg.nakked {
		t.Fatalf("expected term only, got ack=%v nak=%v term=%v", msg.acked, msg.nakked, msg.termed)
	}
	if proc.calls != 0 {
		t.Fatalf("expected processor not called, got %d calls", proc.calls)
	}
}

func TestHandleUsesMsgIDHeaderFallback(t *testing.T) {
	proc := &fakeProcessor{}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "b"})
	headers := nats.Header{}
	headers.Set(jetstream.MsgIDHeader, "hdr-42")
	msg := &fakeMsg{data: []byte(`{"message":{"data":"aGk="}}`), headers: headers}

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := proc.event.RawMessage().MessageID; got != "hdr-42" {
		t.Fatalf("expected header id hdr-42, got %q", got)
	}
}

func TestHandleEnvelopeIDWinsOverHeader(t *testing.T) {
	proc := &fakeProcessor{}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "b"})
	headers := nats.Header{}
	headers.Set(jetstream.MsgIDHeader, "hdr-42")
	msg := &fakeMsg{data: []byte(envelopeBody), headers: headers}

	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := proc.event.RawMessage().MessageID; got != "m-1" {
		t.Fatalf("expected envelope id m-1, got %q", got)
	}
}

func TestHandleAckFailureReturnsError(t *testing.T) {
	proc := &fakeProcessor{}
	w := New(Deps{Processor: proc, Logger: discardLogger(), Bucket: "b"})
	msg := &fakeMsg{data: []byte(envelopeBody), ackErr: errors.New("conn closed")}

	if err := w.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected ack error to be returned")
	}
	if msg.nakked {
		t.Fatal("expected no nak after a successful save")
	}
}

func TestConsumerConfigFromNATSConfig(t *testing.T) {
	cfg := config.NATSConfig{
		Stream:     "MESSAGES",
		Subject:    "messages.>",
		Consumer:   "archiver",
		MaxDeliver: 7,
		AckWait:    45 * time.Second,
	}

	sc := streamConfig(cfg)
	if sc.Name != "MESSAGES" || len(sc.Subjects) != 1 || sc.Subjects[0] != "messages.>" {
		t.Fatalf("unexpected stream config: %+v", sc)
	}
	if sc.Retention != jetstream.WorkQueuePolicy {
		t.Fatalf("expected work queue retention, got %v", sc.Retention)
	}

	cc := consumerConfig(cfg)
	if cc.Durable != "archiver" || cc.FilterSubject != "messages.>" {
		t.Fatalf("unexpected consumer config: %+v", cc)
	}
	if cc.AckPolicy != jetstream.AckExplicitPolicy {
		t.Fatalf("expected explicit ack, got %v", cc.AckPolicy)
	}
	if cc.MaxDeliver != 7 || cc.AckWait != 45*time.Second {
		t.Fatalf("expected max deliver 7 and ack wait 45s, got %d %s", cc.MaxDeliver, cc.AckWait)
	}
}

type fakeConsumeContext struct {
	drained bool
	closed  chan struct{}
}

func (f *fakeConsumeContext) Drain() {
	f.drained = true
}

func (f *fakeConsumeContext) Closed() <-chan struct{} { return f.closed }

func TestDrainWaitsForClosed(t *testing.T) {
	cc := &fakeConsumeContext{closed: make(chan struct{})}
	close(cc.closed)

	if !drain(cc, time.Second) {
		t.Fatal("expected drain to complete")
	}
	if !cc.drained {
		t.Fatal("expected Drain to be called")
	}
}

func TestDrainTimesOut(t *testing.T) {
	cc := &fakeConsumeContext{closed: make(chan struct{})}

	if drain(cc, 10*time.Millisecond) {
		t.Fatal("expected drain to time out while handlers are still running")
	}
}

func TestHandlerContextSurvivesShutdown(t *testing.T) {
	c := NewConsumer(config.NATSConfig{AckWait: time.Minute}, New(Deps{}), discardLogger())

	runCtx, stop := context.WithCancel(context.Background())
	hctx, cancel := c.handlerContext(context.WithoutCancel(runCtx))
	defer cancel()
	stop()

	if err := hctx.Err(); err != nil {
		t.Fatalf("expected handler context to outlive shutdown, got %v", err)
	}
	deadline, ok := hctx.Deadline()
	if !ok || time.Until(deadline) > time.Minute {
		t.Fatalf("expected handler context bounded by ack wait, got %v %v", deadline, ok)
	}
}

func TestDrainTimeoutDefaults(t *testing.T) {
	c := NewConsumer(config.NATSConfig{}, New(Deps{}), nil)
	if got := c.drainTimeout(); got != defaultDrainTimeout {
		t.Fatalf("expected default drain timeout, got %s", got)
	}
}
