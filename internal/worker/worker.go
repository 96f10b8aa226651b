package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/metrics"
	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/precache"
	"github.com/revittco/swcache/internal/routing"
	"github.com/revittco/swcache/internal/store"
	"github.com/revittco/swcache/internal/strategy"
)

// DefaultCacheName is used by routes that do not name a cache.
const DefaultCacheName = "runtime"

// PrecacheCacheName is the unprefixed name of the precache store.
const PrecacheCacheName = "precache"

// ErrNotInstalled is returned by Activate before a successful Install.
var ErrNotInstalled = errors.New("worker is not installed")

// Config is the worker's explicit configuration.
type Config struct {
	// CachePrefix is prepended to every cache name as "<prefix>-<name>".
	CachePrefix string
	// Origin is the site the worker controls. Origin-form request paths
	// resolve against it and it decides which requests are same-origin.
	Origin *url.URL
	// NavigationFallback is the document served for unmatched navigations.
	// Empty disables the fallback.
	NavigationFallback string
	// NavigationAllowlist and NavigationDenylist are regular expressions
	// over path+query. An empty allowlist allows everything; the denylist
	// wins.
	NavigationAllowlist []string
	NavigationDenylist  []string
	Manifest            precache.Manifest
	// CleanURLs lets "/about" find a precached "/about.html".
	CleanURLs bool
}

// Deps are the worker's collaborators.
type Deps struct {
	Store   store.Store
	Fetcher network.Fetcher
	Metrics *metrics.Metrics // optional
	Events  *audit.Logger    // optional
	Logger  *slog.Logger
	Now     func() time.Time
}

// Worker is the request-intercepting runtime: a precache, a route registry
// and a passthrough handler over one store.
type Worker struct {
	cfg       Config
	store     store.Store
	fetcher   network.Fetcher
	registry  *routing.Registry
	precacher *precache.Precacher
	bg        *strategy.Background
	metrics   *metrics.Metrics
	events    *audit.Logger
	logger    *slog.Logger
	now       func() time.Time

	allow    []*regexp.Regexp
	deny     []*regexp.Regexp
	fallback *url.URL

	mu        sync.Mutex
	installed bool
	activated atomic.Bool
}

// New builds a worker. It does not install or activate it.
func New(cfg Config, deps Deps) (*Worker, error) {
	if deps.Store == nil || deps.Fetcher == nil {
		return nil, errors.New("worker needs a store and a fetcher")
	}
	w := &Worker{
		cfg:      cfg,
		store:    deps.Store,
		fetcher:  deps.Fetcher,
		registry: routing.NewRegistry(),
		bg:       strategy.NewBackground(),
		metrics:  deps.Metrics,
		events:   deps.Events,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}

	var err error
	if w.allow, err = compileAll(cfg.NavigationAllowlist); err != nil {
		return nil, fmt.Errorf("navigation allowlist: %w", err)
	}
	if w.deny, err = compileAll(cfg.NavigationDenylist); err != nil {
		return nil, fmt.Errorf("navigation denylist: %w", err)
	}
	if cfg.NavigationFallback != "" {
		u, err := url.Parse(cfg.NavigationFallback)
		if err != nil {
			return nil, fmt.Errorf("navigation fallback: %w", err)
		}
		w.fallback = network.ResolveURL(u, cfg.Origin)
	}

	w.precacher, err = precache.New(cfg.Manifest, precache.Options{
		CacheName: w.CacheName(PrecacheCacheName),
		Origin:    cfg.Origin,
		Store:     deps.Store,
		Fetcher:   deps.Fetcher,
		CleanURLs: cfg.CleanURLs,
		Logger:    w.logger,
		Now:       w.now,
	})
	if err != nil {
		return nil, err
	}
	w.metrics.SetPrecacheEntries(len(w.precacher.Entries()))
	return w, nil
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// CacheName returns the store name for a logical cache name.
func (w *Worker) CacheName(name string) string {
	if name == "" {
		name = DefaultCacheName
	}
	if w.cfg.CachePrefix == "" {
		return name
	}
	return w.cfg.CachePrefix + "-" + name
}

// Config returns the worker's configuration.
func (w *Worker) Config() Config { return w.cfg }

// Store returns the cache store.
func (w *Worker) Store() store.Store { return w.store }

// Registry returns the route registry.
func (w *Worker) Registry() *routing.Registry { return w.registry }

// Precacher returns the precache controller.
func (w *Worker) Precacher() *precache.Precacher { return w.precacher }

// StrategyDeps are the shared dependencies for building route strategies.
func (w *Worker) StrategyDeps() strategy.Deps {
	return strategy.Deps{
		Store:      w.store,
		Fetcher:    w.fetcher,
		Background: w.bg,
		Observer:   w.metrics,
		Logger:     w.logger,
		Now:        w.now,
	}
}

// NewStrategy builds a strategy over the prefixed form of cfg.CacheName.
func (w *Worker) NewStrategy(kind strategy.Kind, cfg strategy.Config) (strategy.Strategy, error) {
	cfg.CacheName = w.CacheName(cfg.CacheName)
	return strategy.New(kind, cfg, w.StrategyDeps())
}

// Register appends a route. Registration order is match order.
func (w *Worker) Register(rt *routing.Route) error {
	if err := w.registry.Register(rt); err != nil {
		return err
	}
	w.metrics.SetRoutes(w.registry.Len())
	return nil
}

// Install precaches the manifest. It may be called again to pick up
// entries that failed before.
func (w *Worker) Install(ctx context.Context) (*precache.InstallResult, error) {
	start := w.now()
	res, err := w.precacher.Install(ctx)
	ev := &audit.Event{
		Kind:       audit.KindInstall,
		CacheName:  w.precacher.CacheName(),
		DurationMs: w.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
		w.events.Record(ctx, ev)
		return nil, err
	}
	ev.Count = len(res.Updated)
	w.events.Record(ctx, ev)

	w.mu.Lock()
	w.installed = true
	w.mu.Unlock()
	return res, nil
}

// Activate removes outdated precache entries and starts serving requests
// through routes. Activation follows install immediately; there is no
// waiting phase.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	installed := w.installed
	w.mu.Unlock()
	if !installed {
		return ErrNotInstalled
	}

	deleted, err := w.precacher.Activate(ctx)
	ev := &audit.Event{
		Kind:      audit.KindActivate,
		CacheName: w.precacher.CacheName(),
		Count:     len(deleted),
	}
	if err != nil {
		ev.Error = err.Error()
		w.events.Record(ctx, ev)
		return err
	}
	w.activated.Store(true)
	w.events.Record(ctx, ev)
	w.logger.Info("worker activated", "routes", w.registry.Len(), "outdated_removed", len(deleted))
	return nil
}

// Activated reports whether the worker controls requests.
func (w *Worker) Activated() bool { return w.activated.Load() }

// Shutdown waits for background refreshes until ctx is done.
func (w *Worker) Shutdown(ctx context.Context) error {
	return w.bg.Wait(ctx)
}

// requestFor extracts what matchers need from r.
func (w *Worker) requestFor(r *http.Request) *routing.Request {
	abs := network.ResolveURL(r.URL, w.cfg.Origin)
	return &routing.Request{
		URL:        abs,
		Method:     r.Method,
		SameOrigin: w.sameOrigin(abs),
		Navigate:   IsNavigation(r),
	}
}

func (w *Worker) sameOrigin(u *url.URL) bool {
	if !u.IsAbs() {
		return true
	}
	if w.cfg.Origin == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, w.cfg.Origin.Scheme) &&
		strings.EqualFold(u.Host, w.cfg.Origin.Host)
}

// IsNavigation reports whether r loads a document: a GET whose fetch mode
// is "navigate", or, for clients that send no fetch metadata, whose Accept
// header prefers HTML.
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	accept := r.Header.Get("Accept")
	first, _, _ := strings.Cut(accept, ",")
	first, _, _ = strings.Cut(first, ";")
	switch strings.TrimSpace(strings.ToLower(first)) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

func (w *Worker) navigationAllowed(u *url.URL) bool {
	target := u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	for _, re := range w.deny {
		if re.MatchString(target) {
			return false
		}
	}
	if len(w.allow) == 0 {
		return true
	}
	for _, re := range w.allow {
		if re.MatchString(target) {
			return true
		}
	}
	return false
}
