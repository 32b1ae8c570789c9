// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess     = "success"
	ResultConfigError = "config_error"
	ResultDecodeError = "decode_error"
	ResultStoreError  = "storage_error"
	ResultEncodeError = "encode_error"
)

var (
	initOnce sync.Once

	messagesProcessedCounter *prometheus.CounterVec
	payloadBytesMetric       prometheus.Histogram
	uploadDurationMetric     *prometheus.HistogramVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		messagesProcessedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_processed_total",
				Help: "Total number of inbound messages by processing result.",
			},
			[]string{"result"},
		)

		payloadBytesMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "message_payload_bytes",
				Help:    "Size of decoded message payloads in bytes.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10),
			},
		)

		uploadDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blob_upload_duration_seconds",
				Help:    "Duration of blob sink writes in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			messagesProcessedCounter,
			payloadBytesMetric,
			uploadDurationMetric,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, result := range []string{
			ResultSuccess,
			ResultConfigError,
			ResultDecodeError,
			ResultStoreError,
			ResultEncodeError,
		} {
			messagesProcessedCounter.WithLabelValues(result)
		}
	})
}

func IncMessagesProcessed(result string) {
	Init()
	messagesProcessedCounter.WithLabelValues(result).Inc()
}

func ObservePayloadBytes(n int) {
	Init()
	payloadBytesMetric.Observe(float64(n))
}

func ObserveUploadDuration(d time.Duration, failed bool) {
	Init()
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	uploadDurationMetric.WithLabelValues(outcome).Observe(d.Seconds())
}
