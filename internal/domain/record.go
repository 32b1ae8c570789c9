// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"fmt"
	"time"
)

const (
	objectTimeLayout = "20060102_150405"
	recordTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

	ContentTypeJSON = "application/json"
)

// PersistedRecord is the JSON document written to the blob store.
// Field order is the serialized order.
type PersistedRecord struct {
	Timestamp   string            `json:"timestamp"`
	MessageID   string            `json:"message_id"`
	Message     string            `json:"message"`
	Attributes  map[string]string `json:"attributes"`
	PublishTime string            `json:"publish_time"`
}

// ObjectName builds message_{YYYYMMDD_HHMMSS_micro}_{id}.json in UTC.
func ObjectName(capturedAt time.Time, messageID string) string {
	capturedAt = capturedAt.UTC()
	return fmt.Sprintf("message_%s_%06d_%s.json",
		capturedAt.Format(objectTimeLayout),
		capturedAt.Nanosecond()/int(time.Microsecond),
		messageID,
	)
}

// RecordTimestamp formats t as ISO-8601 UTC with microsecond precision.
func RecordTimestamp(t time.Time) string {
	return t.UTC().Format(recordTimeLayout)
}
