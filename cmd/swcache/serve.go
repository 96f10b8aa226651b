package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revittco/swcache/internal/api"
	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/metrics"
	"github.com/revittco/swcache/internal/worker"
)

func cmdServe(args []string) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	fc, err := loadFileConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}

	m := metrics.New()
	auditBus := audit.NewBus()
	events := audit.NewLogger(logger, auditBus, cfg.RedactParams...)

	w, err := buildWorker(cfg, fc, workerDeps{store: st, metrics: m, events: events, logger: logger})
	if err != nil {
		return err
	}

	startWorker(ctx, w, logger)

	router := api.NewRouter(api.RouterDeps{
		Worker:   w,
		Metrics:  m,
		AuditBus: auditBus,
		Events:   events,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening",
			"addr", cfg.HTTPAddr,
			"admin", adminURL(cfg.HTTPAddr, "health"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down http server")
		sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer scancel()
		err := srv.Shutdown(sctx)
		if werr := w.Shutdown(sctx); werr != nil {
			slog.Warn("background refreshes did not drain", "error", werr)
		}
		return err
	})
	return g.Wait()
}

// startWorker installs then activates w straight away; there is no waiting
// phase. On failure the worker stays inactive, requests go to the network
// untouched, and POST precache/install retries. It reports whether w is
// now controlling requests.
func startWorker(ctx context.Context, w *worker.Worker, logger *slog.Logger) bool {
	res, err := w.Install(ctx)
	if err != nil {
		logger.Error("precache install failed, serving network only", "error", err)
		return false
	}
	logger.Info("precache installed", "updated", len(res.Updated), "not_updated", len(res.NotUpdated))
	if err := w.Activate(ctx); err != nil {
		logger.Error("activate failed, serving network only", "error", err)
		return false
	}
	return true
}
