// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/adiadia/message-archiver/internal/domain"
	"github.com/adiadia/message-archiver/internal/envelope"
	"github.com/adiadia/message-archiver/internal/metrics"
	"github.com/adiadia/message-archiver/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pub/Sub caps messages at 10 MB; the envelope adds base64 and JSON overhead.
const maxPushBodyBytes = 16 << 20

const readinessTimeout = 3 * time.Second

type Deps struct {
	Processor MessageProcessor
	Blobs     BlobReader
	Health    HealthChecker
	Logger    *slog.Logger
	Bucket    string
	PushToken string
	// AdminToken guards the read endpoints when set.
	AdminToken string
	// PushRateLimit is pushes per minute per source address; 0 disables it.
	PushRateLimit int
	Version       string
	Commit        string
	BuildDate     string
}

type pushResponse struct {
	Bucket    string `json:"bucket"`
	Object    string `json:"object"`
	MessageID string `json:"message_id"`
	Location  string `json:"location"`
	Bytes     int    `json:"bytes"`
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := deps.Health.Check(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	r.Group(func(r chi.Router) {
		if deps.PushToken != "" {
			r.Use(middleware.PushTokenAuth(deps.PushToken, logger))
		}
		if deps.PushRateLimit > 0 {
			r.Use(middleware.PushRateLimit(deps.PushRateLimit, logger))
		}

		// ---------------- PUSH ----------------

		push := func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}

			event, err := envelope.Parse(body, r.Header.Get("Content-Type"))
			if err != nil {
				logger.Warn(fmt.Sprintf("Error processing message: %v", err))
				http.Error(w, "invalid push envelope", http.StatusBadRequest)
				return
			}

			// The processor logs its own failures.
			res, err := deps.Processor.Process(r.Context(), event, deps.Bucket)
			if err != nil {
				status, msg := statusForError(err)
				http.Error(w, msg, status)
				return
			}

			writeJSON(w, http.StatusOK, pushResponse{
				Bucket:    res.Bucket,
				Object:    res.Object,
				MessageID: res.MessageID,
				Location:  res.Location(),
				Bytes:     res.Bytes,
			})
		}

		r.Post("/", push)
		r.Post("/pubsub/push", push)
	})

	// ---------------- READ BACK ----------------

	if deps.Blobs != nil {
		r.Group(func(r chi.Router) {
			if deps.AdminToken != "" {
				r.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))
			}

			r.Get("/buckets/{bucket}/objects", func(w http.ResponseWriter, r *http.Request) {
				bucket := chi.URLParam(r, "bucket")

				limit := 0
				if raw := r.URL.Query().Get("limit"); raw != "" {
					n, err := strconv.Atoi(raw)
					if err != nil || n < 0 {
						http.Error(w, "invalid limit", http.StatusBadRequest)
						return
					}
					limit = n
				}

				blobs, err := deps.Blobs.ListBlobs(r.Context(), bucket, r.URL.Query().Get("prefix"), limit)
				if err != nil {
					logger.Error("list blobs failed", "bucket", bucket, "error", err)
					http.Error(w, "failed to list objects", http.StatusInternalServerError)
					return
				}

				writeJSON(w, http.StatusOK, struct {
					Bucket  string        `json:"bucket"`
					Objects []domain.Blob `json:"objects"`
				}{
					Bucket:  bucket,
					Objects: blobs,
				})
			})

			r.Get("/buckets/{bucket}/objects/{name}", func(w http.ResponseWriter, r *http.Request) {
				bucket := chi.URLParam(r, "bucket")
				name := chi.URLParam(r, "name")

				blob, err := deps.Blobs.GetBlob(r.Context(), bucket, name)
				if err != nil {
					if errors.Is(err, domain.ErrBlobNotFound) {
						http.Error(w, "object not found", http.StatusNotFound)
						return
					}
					logger.Error("get blob failed", "bucket", bucket, "object", name, "error", err)
					http.Error(w, "failed to get object", http.StatusInternalServerError)
					return
				}

				w.Header().Set("Content-Type", valueOrDefault(blob.ContentType, "application/octet-stream"))
				w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(blob.Data)
			})
		})
	}

	return r
}

// statusForError maps processing failures to push responses. Every non-2xx
// status makes the push subscription redeliver.
func statusForError(err error) (int, string) {
	var (
		cfgErr   *domain.ConfigurationError
		decErr   *domain.DecodeError
		storeErr *domain.StorageError
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, "archiver is not configured"
	case errors.As(err, &decErr):
		return http.StatusBadRequest, "message payload is not base64 encoded utf-8"
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, "failed to store message"
	default:
		return http.StatusInternalServerError, "failed to process message"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
