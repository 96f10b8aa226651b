package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/revittco/swcache/internal/config"
	"github.com/revittco/swcache/internal/store"
	"github.com/revittco/swcache/internal/store/memory"
	"github.com/revittco/swcache/internal/worker"
)

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("SWCACHE_HTTP_ADDR", ":9090")
	t.Setenv("SWCACHE_DB_PATH", memoryDB)
	t.Setenv("SWCACHE_FETCH_TIMEOUT", "5s")
	t.Setenv("SWCACHE_COMPRESS", "false")
	t.Setenv("SWCACHE_REDACT_PARAMS", "sig,session")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.DBPath != memoryDB {
		t.Errorf("addr=%q db=%q", cfg.HTTPAddr, cfg.DBPath)
	}
	if cfg.FetchTimeout != 5*time.Second || cfg.Compress {
		t.Errorf("timeout=%v compress=%v", cfg.FetchTimeout, cfg.Compress)
	}
	if strings.Join(cfg.RedactParams, ",") != "sig,session" {
		t.Errorf("redact = %v", cfg.RedactParams)
	}
	if cfg.ConfigFile == "" || cfg.MaxBodyBytes <= 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	t.Setenv("SWCACHE_FETCH_TIMEOUT", "soon")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := &Config{}
	rest := applyFlags(cfg, []string{
		"--addr=:1234", "--db=memory", "--origin=https://app.example.com",
		"--config=/tmp/x.yaml", "--log-level=debug", "--navigate", "--method=POST", "https://a/b",
	})
	if cfg.HTTPAddr != ":1234" || cfg.DBPath != "memory" || cfg.Origin != "https://app.example.com" ||
		cfg.ConfigFile != "/tmp/x.yaml" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := strings.Join(rest, " "); got != "--navigate --method=POST https://a/b" {
		t.Errorf("rest = %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultConfigYAML_RoundTrips(t *testing.T) {
	data, err := defaultConfigYAML("https://app.example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	fc, err := config.Parse(data)
	if err != nil {
		t.Fatalf("parse rendered config: %v\n%s", err, data)
	}
	if fc.Origin != "https://app.example.com" || *fc.CachePrefix != config.DefaultCachePrefix {
		t.Errorf("origin=%q prefix=%q", fc.Origin, *fc.CachePrefix)
	}
	want := config.DefaultRoutes()
	if len(fc.Routes) != len(want) {
		t.Fatalf("routes = %d, want %d", len(fc.Routes), len(want))
	}
	for i := range want {
		if fc.Routes[i].ID != want[i].ID || fc.Routes[i].Match != want[i].Match {
			t.Errorf("route %d = %+v, want %+v", i, fc.Routes[i], want[i])
		}
	}
}

func TestDryRunDecision(t *testing.T) {
	cfg := &Config{Origin: "https://app.example.com", FetchTimeout: time.Second}
	w, err := buildWorker(cfg, config.Default(), workerDeps{store: memory.New()})
	if err != nil {
		t.Fatalf("build worker: %v", err)
	}

	r, _ := http.NewRequest(http.MethodGet, "https://fonts.gstatic.com/s/roboto.woff2", nil)
	var out bytes.Buffer
	printDecision(&out, w.Explain(r))
	for _, want := range []string{"handler:      route", "route:        google-fonts", "simple-vue-project-google-fonts"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	r, _ = http.NewRequest(http.MethodGet, "/dashboard", nil)
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	if d := w.Explain(r); d.Handler != worker.HandlerNavigation {
		t.Errorf("navigation handler = %s", d.Handler)
	}
}

func TestFlushCaches(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	for _, c := range []string{"a", "b"} {
		if err := st.PutEntry(ctx, &store.Entry{CacheName: c, Key: "k", URL: "k", Status: 200}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := flushCaches(ctx, st, []string{"a", "missing"})
	if err == nil || !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("err = %v, want missing cache error", err)
	}
	if len(got) != 1 || got[0].name != "a" || got[0].entries != 1 {
		t.Errorf("flushed = %+v", got)
	}

	got, err = flushCaches(ctx, st, nil)
	if err != nil || len(got) != 1 || got[0].name != "b" {
		t.Errorf("flush all = %+v, %v", got, err)
	}
	if caches, _ := st.ListCaches(ctx); len(caches) != 0 {
		t.Errorf("caches left = %+v", caches)
	}
}

func TestPrintCaches(t *testing.T) {
	var out bytes.Buffer
	err := printCaches(&out, []store.CacheInfo{{Name: "simple-vue-project-precache", Entries: 2, Bytes: 10}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "simple-vue-project-precache") || !strings.Contains(out.String(), "CACHE") {
		t.Errorf("output = %q", out.String())
	}
}
