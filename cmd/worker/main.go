// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
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
	"github.com/adiadia/message-archiver/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	store, err := blobstore.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage backend init failed", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	w := worker.New(worker.Deps{
		Processor: persister.New(persister.Deps{Sink: store, Logger: logger}),
		Logger:    logger,
		Bucket:    cfg.BucketName,
		NakDelay:  cfg.NATS.NakDelay,
	})

	// Metrics only; the worker has no push surface.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server failed", "error", err)
		}
	}()

	logger.Info("worker started",
		"backend", store.Name,
		"bucket", cfg.BucketName,
		"nats_url", cfg.NATS.URL,
	)

	if err := worker.NewConsumer(cfg.NATS, w, logger).Run(ctx); err != nil {
		logger.Error("consumer failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
