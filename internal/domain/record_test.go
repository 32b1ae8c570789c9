// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"testing"
	"time"
)

func TestObjectName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_789_000, time.UTC)

	got := ObjectName(ts, "abc123")
	if got != "message_20240102_030405_006789_abc123.json" {
		t.Fatalf("unexpected object name %q", got)
	}
}

func TestObjectNameConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 1, 2, 5, 0, 0, 0, zone)

	got := ObjectName(ts, "x")
	if got != "message_20240102_030000_000000_x.json" {
		t.Fatalf("unexpected object name %q", got)
	}
}

func TestObjectNameDistinctIDsSameInstant(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 1000, time.UTC)

	if ObjectName(ts, "a") == ObjectName(ts, "b") {
		t.Fatal("expected different ids to produce different names")
	}
}

func TestRecordTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 123_456_000, time.UTC)

	if raw := RecordTimestamp(ts); raw != "2024-01-02T03:04:05.123456Z" {
		t.Fatalf("unexpected timestamp %q", raw)
	}

	// non-UTC input is normalised
	local := ts.In(time.FixedZone("CET", 3600))
	if raw := RecordTimestamp(local); raw != "2024-01-02T03:04:05.123456Z" {
		t.Fatalf("expected UTC timestamp, got %q", raw)
	}
}
