package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/config"
	"github.com/revittco/swcache/internal/metrics"
	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/secrets"
	"github.com/revittco/swcache/internal/store"
	"github.com/revittco/swcache/internal/store/memory"
	"github.com/revittco/swcache/internal/store/sqlite"
	"github.com/revittco/swcache/internal/worker"
)

// openStore opens the configured cache store.
func openStore(ctx context.Context, cfg *Config) (store.Store, error) {
	if cfg.DBPath == memoryDB {
		slog.Info("using in-memory cache store")
		return memory.New(), nil
	}

	opts := []sqlite.Option{sqlite.WithCompression(cfg.Compress)}
	enc, err := buildEncryptor(cfg)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		opts = append(opts, sqlite.WithSealer(enc))
	}

	db, err := sqlite.New(ctx, cfg.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// buildEncryptor returns nil when bodies are stored unsealed.
func buildEncryptor(cfg *Config) (*secrets.AgeEncryptor, error) {
	if cfg.AgeKeyPath != "" {
		enc, err := secrets.NewAgeEncryptor(cfg.AgeKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load age key: %w", err)
		}
		return enc, nil
	}
	if !cfg.Encrypt {
		return nil, nil
	}
	keyPath := cfg.DBPath + ".age"
	enc, err := secrets.EnsureKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("create age key: %w", err)
	}
	slog.Info("using auto-generated age key", "path", keyPath)
	return enc, nil
}

// loadFileConfig reads the YAML file, falling back to the built-in rule
// table when the file does not exist.
func loadFileConfig(path string) (*config.FileConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found, using built-in routes", "file", path)
		return config.Default(), nil
	}
	fc, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded config", "file", path, "routes", len(fc.Routes))
	return fc, nil
}

type workerDeps struct {
	store   store.Store
	metrics *metrics.Metrics
	events  *audit.Logger
	logger  *slog.Logger
}

// buildWorker wires a worker from the process and file config and registers
// its routes. The worker is neither installed nor activated.
func buildWorker(cfg *Config, fc *config.FileConfig, deps workerDeps) (*worker.Worker, error) {
	wc, err := fc.WorkerConfig(cfg.Origin)
	if err != nil {
		return nil, err
	}
	if wc.Origin == nil {
		slog.Warn("no origin configured; origin-form requests cannot be fetched")
	}

	fetcher := network.NewHTTPFetcher(wc.Origin,
		network.WithClient(&http.Client{Timeout: cfg.FetchTimeout}),
		network.WithMaxBodyBytes(cfg.MaxBodyBytes),
		network.WithUserAgent("swcache/"+version),
	)

	w, err := worker.New(wc, worker.Deps{
		Store:   deps.store,
		Fetcher: fetcher,
		Metrics: deps.metrics,
		Events:  deps.events,
		Logger:  deps.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := config.Apply(w, fc.Routes); err != nil {
		return nil, err
	}
	return w, nil
}
