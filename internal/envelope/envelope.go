// SPDX-License-Identifier: Apache-2.0

// Package envelope parses the bodies event sources deliver into domain.InboundEvent.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime"
	"strings"

	"github.com/adiadia/message-archiver/internal/domain"
)

const ContentTypeCloudEvents = "application/cloudevents+json"

// cloudEvent is the structured-mode CloudEvents 1.0 body. Only data matters here.
type cloudEvent struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	DataBase64  string          `json:"data_base64"`
}

var (
	errEmptyBody     = errors.New("empty body")
	errNotJSONObject = errors.New("body is not a JSON object")
	errMissingCEData = errors.New("cloudevent has no data")
	errNoSpecVersion = errors.New("cloudevent has no specversion")
)

// Parse decodes a push envelope. Structured CloudEvents are unwrapped first;
// binary-mode CloudEvents already carry the envelope as the body.
func Parse(body []byte, contentType string) (domain.InboundEvent, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return domain.InboundEvent{}, &domain.EnvelopeError{Err: errEmptyBody}
	}
	if body[0] != '{' {
		return domain.InboundEvent{}, &domain.EnvelopeError{Err: errNotJSONObject}
	}

	if isStructuredCloudEvent(contentType) {
		inner, err := unwrapCloudEvent(body)
		if err != nil {
			return domain.InboundEvent{}, &domain.EnvelopeError{Err: err}
		}
		body = inner
	}

	var ev domain.InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.InboundEvent{}, &domain.EnvelopeError{Err: err}
	}
	return ev, nil
}

func isStructuredCloudEvent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), ContentTypeCloudEvents)
	}
	return mediaType == ContentTypeCloudEvents
}

func unwrapCloudEvent(body []byte) ([]byte, error) {
	var ce cloudEvent
	if err := json.Unmarshal(body, &ce); err != nil {
		return nil, err
	}
	if ce.SpecVersion == "" {
		return nil, errNoSpecVersion
	}

	if len(ce.Data) > 0 && !bytes.Equal(ce.Data, []byte("null")) {
		return ce.Data, nil
	}
	if ce.DataBase64 != "" {
		return base64.StdEncoding.DecodeString(ce.DataBase64)
	}
	return nil, errMissingCEData
}
