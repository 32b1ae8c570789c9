// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/message-archiver/internal/blobstore"
	"github.com/adiadia/message-archiver/internal/config"
	"github.com/adiadia/message-archiver/internal/logging"
	"github.com/adiadia/message-archiver/internal/metrics"
	"github.com/adiadia/message-archiver/internal/persister"
	httptransport "github.com/adiadia/message-archiver/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)
	cfg.LogWarnings(logger)
	metrics.Init()

	if cfg.BucketName == "" {
		// Pushes fail with a configuration error until the variable is set.
		logger.Warn("BUCKET_NAME is not set")
	}

	store, err := blobstore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage backend init failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	p := persister.New(persister.Deps{
		Sink:   store,
		Logger: logger,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Processor: p,
		Blobs:     store,
		Health:    store.Health,
		Logger:    logger,
		Bucket:    cfg.BucketName,
		PushToken: cfg.PushToken,

		AdminToken:    cfg.AdminToken,
		PushRateLimit: cfg.PushRateLimitPerMinute,
		Version:       Version,
		Commit:        Commit,
		BuildDate:     BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"backend", store.Name,
			"bucket", cfg.BucketName,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
