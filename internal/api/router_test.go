package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/config"
	"github.com/revittco/swcache/internal/metrics"
	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/precache"
	"github.com/revittco/swcache/internal/store/memory"
	"github.com/revittco/swcache/internal/strategy"
	"github.com/revittco/swcache/internal/worker"
)

const site = "https://app.example.com"

type testEnv struct {
	handler http.Handler
	mt      *httpmock.MockTransport
	worker  *worker.Worker
	bus     *audit.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	origin, _ := url.Parse(site)
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodGet, site+"/index.html",
		httpmock.NewStringResponder(http.StatusOK, "<html>shell</html>"))

	bus := audit.NewBus()
	events := audit.NewLogger(nil, bus)
	m := metrics.New()
	w, err := worker.New(worker.Config{
		CachePrefix:        config.DefaultCachePrefix,
		Origin:             origin,
		NavigationFallback: config.DefaultNavigationFallback,
		Manifest:           precache.Manifest{{URL: "/index.html", Revision: precache.Rev("1")}},
	}, worker.Deps{
		Store:   memory.New(),
		Fetcher: network.NewHTTPFetcher(origin, network.WithClient(&http.Client{Transport: mt})),
		Metrics: m,
		Events:  events,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	t.Cleanup(func() { _ = w.Shutdown(context.Background()) })
	if err := config.Apply(w, config.DefaultRoutes()); err != nil {
		t.Fatalf("apply routes: %v", err)
	}
	ctx := context.Background()
	if _, err := w.Install(ctx); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := w.Activate(ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}

	return &testEnv{
		handler: NewRouter(RouterDeps{Worker: w, Metrics: m, AuditBus: bus, Events: events, Version: "test"}),
		mt:      mt,
		worker:  w,
		bus:     bus,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func TestProxy_CacheFirstHeaders(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodGet, site+"/img/a.png",
		httpmock.NewStringResponder(http.StatusOK, "png-bytes").
			HeaderSet(http.Header{"Content-Type": {"image/png"}}))

	first := env.do(t, http.MethodGet, "/img/a.png", "")
	if first.Code != http.StatusOK || first.Body.String() != "png-bytes" {
		t.Fatalf("first = %d %q", first.Code, first.Body.String())
	}
	if got := first.Header().Get(HeaderSource); got != "network" {
		t.Errorf("first source = %q, want network", got)
	}
	if got := first.Header().Get(HeaderRoute); got != "cache-images" {
		t.Errorf("route = %q, want cache-images", got)
	}
	if got := first.Header().Get(HeaderHandler); got != "route" {
		t.Errorf("handler = %q, want route", got)
	}

	second := env.do(t, http.MethodGet, "/img/a.png", "")
	if got := second.Header().Get(HeaderSource); got != "cache" {
		t.Errorf("second source = %q, want cache", got)
	}
	if got := second.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content-type = %q", got)
	}
	if second.Body.String() != "png-bytes" {
		t.Errorf("second body = %q", second.Body.String())
	}
	if n := env.mt.GetCallCountInfo()["GET "+site+"/img/a.png"]; n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if second.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestProxy_HeadHasNoBody(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodHead, site+"/api/ping",
		httpmock.NewStringResponder(http.StatusOK, "pong"))

	rr := env.do(t, http.MethodHead, "/api/ping", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("HEAD body = %q", rr.Body.String())
	}
	if got := rr.Header().Get(HeaderHandler); got != "passthrough" {
		t.Errorf("handler = %q, want passthrough", got)
	}
}

func TestProxy_NavigationFallback(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/settings/profile", "", "Accept", "text/html,application/xhtml+xml")
	if rr.Code != http.StatusOK || rr.Body.String() != "<html>shell</html>" {
		t.Fatalf("fallback = %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get(HeaderHandler); got != "navigation" {
		t.Errorf("handler = %q, want navigation", got)
	}
	if got := rr.Header().Get(HeaderSource); got != "cache" {
		t.Errorf("source = %q, want cache", got)
	}
}

func TestProxy_NetworkErrorIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodGet, site+"/api/down",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	rr := env.do(t, http.MethodGet, "/api/down", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestProxy_AbsoluteFormIsNeverAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodGet, "http://cdn.other.com/_swcache/api/v1/health",
		httpmock.NewStringResponder(http.StatusOK, "upstream"))

	rr := env.do(t, http.MethodGet, "http://cdn.other.com/_swcache/api/v1/health", "")
	if rr.Body.String() != "upstream" {
		t.Fatalf("body = %q, want upstream response", rr.Body.String())
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"network", &network.NetworkError{URL: "u", Err: errors.New("refused")}, http.StatusBadGateway},
		{"timeout", &network.NetworkError{URL: "u", Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"wrapped timeout", fmt.Errorf("route: %w", &network.NetworkError{Timeout: true}), http.StatusGatewayTimeout},
		{"cache only miss", strategy.ErrNoResponse, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdmin_HealthAndRoutes(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/_swcache/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health = %d", rr.Code)
	}
	h := decode[healthResponse](t, rr)
	if !h.Activated || h.Routes != 9 || h.PrecacheEntries != 1 || h.Version != "test" {
		t.Errorf("health = %+v", h)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("admin response missing security headers")
	}

	rr = env.do(t, http.MethodGet, "/_swcache/api/v1/routes", "")
	routes := decode[[]routeResponse](t, rr)
	if len(routes) != 9 {
		t.Fatalf("routes = %d, want 9", len(routes))
	}
	if routes[0].ID != "google-fonts" || routes[0].Strategy != "stale-while-revalidate" || routes[0].Match != "pattern" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if routes[4].CacheName != "simple-vue-project-runtime" || routes[4].Method != http.MethodGet {
		t.Errorf("routes[4] = %+v", routes[4])
	}
}

func TestAdmin_DryRun(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/_swcache/api/v1/dry-run", `{"url":"https://cdn.other.com/x.png"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("dry-run = %d %s", rr.Code, rr.Body.String())
	}
	d := decode[dryRunResponse](t, rr)
	if d.RouteID != "image-cache" || d.Expr != `.*\.(?:png|jpg|jpeg|svg|gif)` {
		t.Errorf("decision = %+v", d)
	}
	if n := env.mt.GetTotalCallCount(); n != 1 {
		t.Errorf("dry-run touched the network: %d calls", n)
	}

	rr = env.do(t, http.MethodPost, "/_swcache/api/v1/dry-run",
		`{"url":"/about","headers":{"Sec-Fetch-Mode":"navigate"}}`)
	d = decode[dryRunResponse](t, rr)
	if d.Handler != worker.HandlerNavigation || d.FallbackURL != site+"/index.html" {
		t.Errorf("navigation decision = %+v", d)
	}

	rr = env.do(t, http.MethodPost, "/_swcache/api/v1/dry-run", `{"method":"GET"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing url = %d, want 400", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/_swcache/api/v1/dry-run", `{"url":"/x","bogus":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown field = %d, want 400", rr.Code)
	}
}

func TestAdmin_Caches(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodGet, site+"/img/a.png",
		httpmock.NewStringResponder(http.StatusOK, "png"))
	env.do(t, http.MethodGet, "/img/a.png", "")

	rr := env.do(t, http.MethodGet, "/_swcache/api/v1/caches", "")
	caches := decode[[]map[string]any](t, rr)
	names := map[string]bool{}
	for _, c := range caches {
		names[c["name"].(string)] = true
	}
	if !names["simple-vue-project-cache-images"] || !names["simple-vue-project-precache"] {
		t.Fatalf("caches = %v", names)
	}

	rr = env.do(t, http.MethodGet, "/_swcache/api/v1/caches/simple-vue-project-cache-images/entries", "")
	entries := decode[[]map[string]any](t, rr)
	if len(entries) != 1 || entries[0]["key"] != site+"/img/a.png" {
		t.Fatalf("entries = %v", entries)
	}

	target := "/_swcache/api/v1/caches/simple-vue-project-cache-images/entries?key=" + url.QueryEscape(site+"/img/a.png")
	if rr = env.do(t, http.MethodDelete, target, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete entry = %d", rr.Code)
	}
	if rr = env.do(t, http.MethodDelete, target, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete entry = %d, want 404", rr.Code)
	}
	if rr = env.do(t, http.MethodDelete, "/_swcache/api/v1/caches/simple-vue-project-cache-images/entries", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("delete without key = %d, want 400", rr.Code)
	}

	if rr = env.do(t, http.MethodDelete, "/_swcache/api/v1/caches/simple-vue-project-precache", ""); rr.Code != http.StatusOK {
		t.Fatalf("delete cache = %d", rr.Code)
	}
	if got := decode[map[string]int](t, rr)["deleted"]; got != 1 {
		t.Errorf("deleted = %d, want 1", got)
	}
	if rr = env.do(t, http.MethodDelete, "/_swcache/api/v1/caches/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("delete missing cache = %d, want 404", rr.Code)
	}

	purges := 0
	for _, ev := range env.bus.Recent(0) {
		if ev.Kind == audit.KindPurge {
			purges++
		}
	}
	if purges != 2 {
		t.Errorf("purge events = %d, want 2", purges)
	}
}

func TestAdmin_PrecacheInstall(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/_swcache/api/v1/precache", "")
	list := decode[precacheListResponse](t, rr)
	if !list.Installed || len(list.Entries) != 1 || list.CacheName != "simple-vue-project-precache" {
		t.Fatalf("precache = %+v", list)
	}

	// Purge, then reinstall refetches the shell.
	env.do(t, http.MethodDelete, "/_swcache/api/v1/caches/simple-vue-project-precache", "")
	rr = env.do(t, http.MethodPost, "/_swcache/api/v1/precache/install", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("install = %d %s", rr.Code, rr.Body.String())
	}
	res := decode[precache.InstallResult](t, rr)
	if len(res.Updated) != 1 {
		t.Errorf("updated = %v", res.Updated)
	}
	if n := env.mt.GetCallCountInfo()["GET "+site+"/index.html"]; n != 2 {
		t.Errorf("shell fetched %d times, want 2", n)
	}

	env.do(t, http.MethodDelete, "/_swcache/api/v1/caches/simple-vue-project-precache", "")
	env.mt.RegisterResponder(http.MethodGet, site+"/index.html",
		httpmock.NewStringResponder(http.StatusNotFound, "gone"))
	rr = env.do(t, http.MethodPost, "/_swcache/api/v1/precache/install", "")
	if rr.Code != http.StatusBadGateway {
		t.Errorf("failed install = %d, want 502", rr.Code)
	}
}

func TestAdmin_StatsAndEvents(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodGet, site+"/app.js",
		httpmock.NewStringResponder(http.StatusOK, "js"))
	env.do(t, http.MethodGet, "/app.js", "")

	rr := env.do(t, http.MethodGet, "/_swcache/api/v1/stats", "")
	st := decode[statsResponse](t, rr)
	if st.Routes != 9 || !st.Activated || len(st.Recent) == 0 {
		t.Fatalf("stats = %+v", st)
	}
	if st.RouteResolution.Misses == 0 {
		t.Errorf("route memo misses = 0, want at least one")
	}

	rr = env.do(t, http.MethodGet, "/_swcache/api/v1/events/recent?limit=1", "")
	evs := decode[[]audit.Event](t, rr)
	if len(evs) != 1 || evs[0].Kind != audit.KindDispatch || evs[0].RouteID != "cache-js-css" {
		t.Fatalf("recent = %+v", evs)
	}
	if evs[0].RequestID == "" {
		t.Error("dispatch event missing request id")
	}

	rr = env.do(t, http.MethodGet, "/_swcache/api/v1/events/recent?limit=zero", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rr.Code)
	}
}

func TestAdmin_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.mt.RegisterResponder(http.MethodGet, site+"/img/a.png",
		httpmock.NewStringResponder(http.StatusOK, "png"))
	env.do(t, http.MethodGet, "/img/a.png", "")

	rr := env.do(t, http.MethodGet, "/_swcache/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `swcache_dispatch_total{route="cache-images"`) {
		t.Errorf("metrics missing dispatch counter:\n%s", rr.Body.String())
	}
}

func TestAdmin_EventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/_swcache/api/v1/events?kind=purge", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	// A dispatch event is filtered out; the purge comes through.
	env.do(t, http.MethodGet, "/index.html", "")
	env.do(t, http.MethodDelete, "/_swcache/api/v1/caches/simple-vue-project-precache", "")

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev audit.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("event: %v", err)
		}
		if ev.Kind != audit.KindPurge || ev.CacheName != "simple-vue-project-precache" {
			t.Fatalf("event = %+v", ev)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", sc.Err())
}
