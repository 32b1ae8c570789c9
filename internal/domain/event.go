// SPDX-License-Identifier: Apache-2.0

package domain

import "encoding/json"

const UnknownMessageID = "unknown"

// InboundEvent is the push envelope delivered by the event source.
type InboundEvent struct {
	Message      *RawMessage `json:"message"`
	Subscription string      `json:"subscription,omitempty"`
}

// RawMessage is one Pub/Sub message. Data is base64 encoded.
type RawMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
	Attributes  map[string]string `json:"attributes"`
}

// wireMessage accepts both spellings Pub/Sub push emits for the id and publish time.
type wireMessage struct {
	Data             string            `json:"data"`
	MessageID        string            `json:"messageId"`
	MessageIDSnake   string            `json:"message_id"`
	PublishTime      string            `json:"publishTime"`
	PublishTimeSnake string            `json:"publish_time"`
	Attributes       map[string]string `json:"attributes"`
}

func (m *RawMessage) UnmarshalJSON(b []byte) error {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	m.Data = w.Data
	m.MessageID = firstNonEmpty(w.MessageID, w.MessageIDSnake)
	m.PublishTime = firstNonEmpty(w.PublishTime, w.PublishTimeSnake)
	m.Attributes = w.Attributes
	return nil
}

// RawMessage returns the carried message, or an empty one when the envelope has none.
func (e InboundEvent) RawMessage() RawMessage {
	if e.Message == nil {
		return RawMessage{}
	}
	return *e.Message
}

// ID returns the message id, defaulting to "unknown".
func (m RawMessage) ID() string {
	if m.MessageID == "" {
		return UnknownMessageID
	}
	return m.MessageID
}

// AttributeMap never returns nil so the persisted record always carries an object.
func (m RawMessage) AttributeMap() map[string]string {
	if m.Attributes == nil {
		return map[string]string{}
	}
	return m.Attributes
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
