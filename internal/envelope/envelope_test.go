// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/adiadia/message-archiver/internal/domain"
)

const pushBody = `{
	"message": {
		"data": "aGVsbG8=",
		"messageId": "abc123",
		"publishTime": "2024-01-01T00:00:00Z",
		"attributes": {"src": "test"}
	},
	"subscription": "projects/p/subscriptions/s"
}`

func TestParsePushEnvelope(t *testing.T) {
	ev, err := Parse([]byte(pushBody), "application/json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.RawMessage().ID() != "abc123" {
		t.Fatalf("unexpected id %q", ev.RawMessage().ID())
	}
	if ev.Subscription != "projects/p/subscriptions/s" {
		t.Fatalf("unexpected subscription %q", ev.Subscription)
	}
}

func TestParseStructuredCloudEvent(t *testing.T) {
	body := `{
		"specversion": "1.0",
		"id": "ce-1",
		"source": "//pubsub.googleapis.com/projects/p/topics/t",
		"type": "google.cloud.pubsub.topic.v1.messagePublished",
		"data": ` + pushBody + `
	}`

	ev, err := Parse([]byte(body), "application/cloudevents+json; charset=utf-8")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.RawMessage().Data != "aGVsbG8=" {
		t.Fatalf("expected unwrapped data, got %q", ev.RawMessage().Data)
	}
}

func TestParseStructuredCloudEventBase64Data(t *testing.T) {
	body := `{"specversion":"1.0","id":"x","data_base64":"` +
		base64.StdEncoding.EncodeToString([]byte(pushBody)) + `"}`

	ev, err := Parse([]byte(body), ContentTypeCloudEvents)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.RawMessage().MessageID != "abc123" {
		t.Fatalf("unexpected id %q", ev.RawMessage().MessageID)
	}
}

func TestParseBinaryCloudEventUsesBodyAsEnvelope(t *testing.T) {
	ev, err := Parse([]byte(pushBody), "application/json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.RawMessage().PublishTime != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected publish time %q", ev.RawMessage().PublishTime)
	}
}

func TestParseEmptyObjectHasNoMessage(t *testing.T) {
	ev, err := Parse([]byte(`{}`), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Message != nil {
		t.Fatalf("expected nil message, got %+v", ev.Message)
	}
}

func TestParseRejectsMalformedBodies(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "empty", body: "   "},
		{name: "array", body: `[1,2]`},
		{name: "truncated", body: `{"message": {`},
		{name: "wrong message type", body: `{"message": "text"}`},
		{name: "cloudevent without specversion", body: `{"data": {}}`, contentType: ContentTypeCloudEvents},
		{name: "cloudevent without data", body: `{"specversion": "1.0"}`, contentType: ContentTypeCloudEvents},
		{name: "cloudevent bad base64", body: `{"specversion": "1.0", "data_base64": "%%%"}`, contentType: ContentTypeCloudEvents},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body), tc.contentType)
			var envErr *domain.EnvelopeError
			if !errors.As(err, &envErr) {
				t.Fatalf("expected EnvelopeError got %v", err)
			}
		})
	}
}
