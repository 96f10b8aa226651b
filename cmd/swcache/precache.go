package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/revittco/swcache/internal/audit"
)

// cmdPrecache installs the precache manifest into the store and removes
// outdated entries, without starting the server.
func cmdPrecache(args []string) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)
	if cfg.DBPath == memoryDB {
		return fmt.Errorf("precache needs a persistent store; set SWCACHE_DB_PATH")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	fc, err := loadFileConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	w, err := buildWorker(cfg, fc, workerDeps{
		store:  st,
		events: audit.NewLogger(logger, nil, cfg.RedactParams...),
		logger: logger,
	})
	if err != nil {
		return err
	}

	res, err := w.Install(ctx)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	fmt.Printf("Precache %s\n", w.Precacher().CacheName())
	fmt.Printf("  fetched:   %d\n", len(res.Updated))
	fmt.Printf("  unchanged: %d\n", len(res.NotUpdated))
	for _, u := range res.Updated {
		fmt.Printf("    + %s\n", u)
	}
	return nil
}
