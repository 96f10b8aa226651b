package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/revittco/swcache/internal/config"
	"github.com/revittco/swcache/internal/precache"
	"github.com/revittco/swcache/internal/store/memory"
	"github.com/revittco/swcache/internal/worker"
)

func TestStartWorker_InstallFailureServesNetworkOnly(t *testing.T) {
	var deployed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/index.html" && !deployed.Load() {
			http.Error(w, "deploying", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok "+r.URL.Path)
	}))
	defer srv.Close()

	fc := config.Default()
	fc.Precache.Entries = precache.Manifest{{URL: "/index.html", Revision: precache.Rev("1")}}
	cfg := &Config{Origin: srv.URL, FetchTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20}
	w, err := buildWorker(cfg, fc, workerDeps{store: memory.New()})
	if err != nil {
		t.Fatalf("build worker: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	if startWorker(ctx, w, logger) {
		t.Fatal("startWorker reported success with a failing precache entry")
	}
	if w.Activated() {
		t.Fatal("worker activated after failed install")
	}

	resp, err := w.Dispatch(ctx, httptest.NewRequest(http.MethodGet, "/css/app.css", nil))
	if err != nil {
		t.Fatalf("dispatch while inactive: %v", err)
	}
	if resp.Handler != worker.HandlerInactive || string(resp.Entry.Body) != "ok /css/app.css" {
		t.Fatalf("inactive dispatch = %s %q", resp.Handler, resp.Entry.Body)
	}

	deployed.Store(true)
	if !startWorker(ctx, w, logger) {
		t.Fatal("retry did not activate the worker")
	}
	resp, err = w.Dispatch(ctx, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	if err != nil {
		t.Fatalf("dispatch after activation: %v", err)
	}
	if resp.Handler != worker.HandlerPrecache {
		t.Fatalf("handler = %s, want precache", resp.Handler)
	}
}
