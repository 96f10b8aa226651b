package precache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/store"
	"github.com/revittco/swcache/internal/strategy"
)

// DefaultConcurrency bounds parallel fetches during Install.
const DefaultConcurrency = 8

// revisionParam carries the revision in the cache key.
const revisionParam = "__revision"

// DirectoryIndex is appended to URLs ending in "/" during lookup.
const DirectoryIndex = "index.html"

// InstallError reports the asset that aborted an install.
type InstallError struct {
	URL    string
	Status int // 0 when the fetch itself failed
	Err    error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precache %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("precache %s: bad status %d", e.URL, e.Status)
}

func (e *InstallError) Unwrap() error { return e.Err }

// Entry is a resolved manifest entry.
type Entry struct {
	URL      string `json:"url"`
	Revision string `json:"revision,omitempty"`
	CacheKey string `json:"cache_key"`
}

// InstallResult lists what Install fetched and what it already had.
type InstallResult struct {
	Updated    []string `json:"updated"`
	NotUpdated []string `json:"not_updated"`
}

// Options configure a Precacher.
type Options struct {
	CacheName   string
	Origin      *url.URL
	Store       store.Store
	Fetcher     network.Fetcher
	Concurrency int
	// IgnoreParams are query parameter prefixes dropped during lookup.
	// Defaults to "utm_".
	IgnoreParams []string
	// CleanURLs also tries "<path>.html" during lookup.
	CleanURLs bool
	Logger    *slog.Logger
	Now       func() time.Time
}

// Precacher eagerly stores build-time assets and answers lookups for them.
type Precacher struct {
	opts    Options
	entries []Entry
	byURL   map[string]string // absolute url -> cache key
	keys    map[string]bool

	mu        sync.Mutex
	installed bool
}

// New resolves the manifest against the origin. Relative URLs need an
// origin.
func New(m Manifest, opts Options) (*Precacher, error) {
	if opts.CacheName == "" {
		return nil, errors.New("precache cache name is required")
	}
	if opts.Store == nil || opts.Fetcher == nil {
		return nil, errors.New("precache needs a store and a fetcher")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.IgnoreParams == nil {
		opts.IgnoreParams = []string{"utm_"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	entries, err := m.dedupe(func(raw string) (string, error) {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("manifest url %q: %w", raw, err)
		}
		if !u.IsAbs() && opts.Origin == nil {
			return "", fmt.Errorf("manifest url %q is relative and no origin is configured", raw)
		}
		return strategy.CacheKey(u, opts.Origin), nil
	})
	if err != nil {
		return nil, err
	}

	p := &Precacher{
		opts:    opts,
		entries: entries,
		byURL:   make(map[string]string, len(entries)),
		keys:    make(map[string]bool, len(entries)),
	}
	for _, e := range entries {
		p.byURL[e.URL] = e.CacheKey
		p.keys[e.CacheKey] = true
	}
	return p, nil
}

// CacheName is the store name precached entries live in.
func (p *Precacher) CacheName() string { return p.opts.CacheName }

// Entries returns the resolved manifest in order.
func (p *Precacher) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Installed reports whether Install has succeeded at least once.
func (p *Precacher) Installed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.installed
}

// Install fetches every entry not already cached under its cache key.
// Either every missing entry is stored or none is.
func (p *Precacher) Install(ctx context.Context) (*InstallResult, error) {
	res := &InstallResult{}
	var missing []Entry
	for _, e := range p.entries {
		_, err := p.opts.Store.GetEntry(ctx, p.opts.CacheName, e.CacheKey)
		switch {
		case err == nil:
			res.NotUpdated = append(res.NotUpdated, e.URL)
		case errors.Is(err, store.ErrNotFound):
			missing = append(missing, e)
		default:
			return nil, fmt.Errorf("check precache %s: %w", e.URL, err)
		}
	}

	fetched := make([]*store.Entry, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, e := range missing {
		g.Go(func() error {
			rec, err := p.fetch(gctx, e)
			if err != nil {
				return err
			}
			fetched[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := p.opts.Now()
	err := p.opts.Store.Tx(ctx, func(tx store.Store) error {
		for _, rec := range fetched {
			rec.StoredAt = now
			if err := tx.PutEntry(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store precache: %w", err)
	}
	for _, e := range missing {
		res.Updated = append(res.Updated, e.URL)
	}

	p.mu.Lock()
	p.installed = true
	p.mu.Unlock()

	p.opts.Logger.Info("precache installed",
		"cache", p.opts.CacheName,
		"updated", len(res.Updated),
		"not_updated", len(res.NotUpdated),
	)
	return res, nil
}

func (p *Precacher) fetch(ctx context.Context, e Entry) (*store.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return nil, &InstallError{URL: e.URL, Err: err}
	}
	rec, err := p.opts.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, &InstallError{URL: e.URL, Err: err}
	}
	if rec.Status < 200 || rec.Status > 299 {
		return nil, &InstallError{URL: e.URL, Status: rec.Status}
	}
	rec.CacheName = p.opts.CacheName
	rec.Key = e.CacheKey
	rec.URL = e.URL
	return rec, nil
}

// Activate deletes cached entries whose keys are no longer in the manifest.
func (p *Precacher) Activate(ctx context.Context) ([]string, error) {
	infos, err := p.opts.Store.ListEntries(ctx, p.opts.CacheName)
	if err != nil {
		return nil, fmt.Errorf("list precache: %w", err)
	}
	var deleted []string
	for _, info := range infos {
		if p.keys[info.Key] {
			continue
		}
		if err := p.opts.Store.DeleteEntry(ctx, p.opts.CacheName, info.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return deleted, fmt.Errorf("delete outdated precache %s: %w", info.Key, err)
		}
		deleted = append(deleted, info.Key)
	}
	if len(deleted) > 0 {
		p.opts.Logger.Info("removed outdated precache entries",
			"cache", p.opts.CacheName, "count", len(deleted))
	}
	return deleted, nil
}

// CacheKeyFor maps a request URL to a precache key, trying the URL as-is,
// without ignored query parameters, with the directory index, and as a
// clean URL.
func (p *Precacher) CacheKeyFor(u *url.URL) (string, bool) {
	for _, v := range p.variations(u) {
		if key, ok := p.byURL[v]; ok {
			return key, true
		}
	}
	return "", false
}

// Lookup returns the cached precache entry for u.
func (p *Precacher) Lookup(ctx context.Context, u *url.URL) (*store.Entry, error) {
	key, ok := p.CacheKeyFor(u)
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.opts.Store.GetEntry(ctx, p.opts.CacheName, key)
}

// URLFor returns the request URL for a manifest entry matching u. It is
// what a miss falls back to fetching.
func (p *Precacher) URLFor(u *url.URL) (string, bool) {
	key, ok := p.CacheKeyFor(u)
	if !ok {
		return "", false
	}
	for _, e := range p.entries {
		if e.CacheKey == key {
			return e.URL, true
		}
	}
	return "", false
}

func (p *Precacher) variations(u *url.URL) []string {
	abs := network.ResolveURL(u, p.opts.Origin)
	if abs == nil {
		return nil
	}
	base := strategy.CacheKey(abs, nil)
	out := []string{base}

	stripped := *abs
	stripped.RawQuery = p.stripIgnored(abs.RawQuery)
	if s := strategy.CacheKey(&stripped, nil); s != base {
		out = append(out, s)
	}

	if strings.HasSuffix(stripped.Path, "/") {
		idx := stripped
		idx.Path += DirectoryIndex
		idx.RawPath = ""
		out = append(out, strategy.CacheKey(&idx, nil))
	} else if p.opts.CleanURLs {
		clean := stripped
		clean.Path += ".html"
		clean.RawPath = ""
		out = append(out, strategy.CacheKey(&clean, nil))
	}
	return out
}

// stripIgnored drops ignored parameters and keeps the order of the rest.
func (p *Precacher) stripIgnored(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		name, _, _ := strings.Cut(part, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if !p.ignored(name) {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "&")
}

func (p *Precacher) ignored(name string) bool {
	for _, prefix := range p.opts.IgnoreParams {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func cacheKey(absURL, revision string) string {
	if revision == "" {
		return absURL
	}
	u, err := url.Parse(absURL)
	if err != nil {
		return absURL
	}
	q := u.Query()
	q.Set(revisionParam, revision)
	u.RawQuery = q.Encode()
	return u.String()
}
