// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/adiadia/message-archiver/internal/blobstore"
	"github.com/adiadia/message-archiver/internal/config"
	"github.com/adiadia/message-archiver/internal/envelope"
	"github.com/adiadia/message-archiver/internal/logging"
	"github.com/adiadia/message-archiver/internal/persistence/postgres"
	"github.com/adiadia/message-archiver/internal/persister"
)

const usage = `usage: archiver <command> [args]

commands:
  process [file]          persist one push envelope read from file or stdin
  get <bucket> <object>   print a stored object
  list <bucket> [prefix]  list stored objects
  migrate                 apply embedded Postgres migrations`

func main() {
	cfg := config.Load()
	logger := logging.NewLoggerTo(cfg.Env, os.Stderr)
	cfg.LogWarnings(logger)

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(ctx, cfg, logger, os.Args[2:])
	case "get":
		err = runGet(ctx, cfg, logger, os.Args[2:])
	case "list":
		err = runList(ctx, cfg, logger, os.Args[2:])
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func runProcess(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) > 1 {
		return errUsage
	}

	body, err := readInput(args)
	if err != nil {
		return err
	}

	event, err := envelope.Parse(body, "application/json")
	if err != nil {
		return err
	}

	store, err := blobstore.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	p := persister.New(persister.Deps{Sink: store, Logger: logger})
	res, err := p.Process(ctx, event, cfg.BucketName)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, res.Location())
	return err
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	return body, nil
}

func runGet(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		return errUsage
	}

	store, err := blobstore.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	blob, err := store.GetBlob(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(append(blob.Data, '\n'))
	return err
}

func runList(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}

	store, err := blobstore.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := store.ListBlobs(ctx, args[0], prefix, 0)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
	for _, b := range blobs {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Size, b.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func runMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := postgres.NewMigrator(pool, logger)
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("schema up to date")
		return nil
	}

	logger.Info("applying migrations", "pending", pending)
	return m.Apply(ctx)
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, usage)
}
