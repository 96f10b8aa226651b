package strategy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/store"
)

// DefaultCacheableStatuses are stored when a route does not override them.
var DefaultCacheableStatuses = []int{http.StatusOK}

type base struct {
	cacheName  string
	store      store.Store
	fetcher    network.Fetcher
	expiration Expiration
	cacheable  map[int]bool
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

func newBase(cfg Config, deps Deps) base {
	statuses := cfg.CacheableStatuses
	if len(statuses) == 0 {
		statuses = DefaultCacheableStatuses
	}
	cacheable := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		cacheable[s] = true
	}

	b := base{
		cacheName:  cfg.CacheName,
		store:      deps.Store,
		fetcher:    deps.Fetcher,
		expiration: cfg.Expiration,
		cacheable:  cacheable,
		observer:   deps.Observer,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

func (b *base) CacheName() string { return b.cacheName }

// lookup returns a fresh cached entry. Read errors are treated as a miss;
// an expired entry is deleted and reported as a miss.
func (b *base) lookup(ctx context.Context, key string) (*store.Entry, bool) {
	e, err := b.store.GetEntry(ctx, b.cacheName, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("cache read failed", "cache", b.cacheName, "key", key, "error", err)
		}
		return nil, false
	}
	if !b.expiration.Fresh(e, b.now()) {
		if err := b.store.DeleteEntry(context.WithoutCancel(ctx), b.cacheName, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("delete expired entry failed", "cache", b.cacheName, "key", key, "error", err)
		} else if err == nil {
			b.observer.Evicted(b.cacheName, 1)
		}
		return nil, false
	}
	return e, true
}

func (b *base) fetch(ctx context.Context, req *Request) (*store.Entry, error) {
	return b.fetcher.Fetch(ctx, req.HTTP)
}

// fill fetches a response that may be stored. The client's validators are
// dropped so upstream always answers with a full body.
func (b *base) fill(ctx context.Context, r *http.Request) (*store.Entry, error) {
	r = r.Clone(ctx)
	network.StripConditionalHeaders(r.Header)
	return b.fetcher.Fetch(ctx, r)
}

// put stores e under key when its status is cacheable, then applies the
// expiration policy. Failures are logged and counted, never returned.
func (b *base) put(ctx context.Context, key string, e *store.Entry) {
	if !b.cacheable[e.Status] {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := b.now()

	rec := e.Clone()
	rec.CacheName = b.cacheName
	rec.Key = key
	rec.StoredAt = now
	if err := b.store.PutEntry(ctx, rec); err != nil {
		b.logger.Warn("cache write failed", "cache", b.cacheName, "key", key, "error", err)
		b.observer.CacheWriteFailed(b.cacheName, err)
		return
	}

	if !b.expiration.Enabled() {
		return
	}
	n, err := b.expiration.enforce(ctx, b.store, b.cacheName, now)
	if n > 0 {
		b.observer.Evicted(b.cacheName, n)
	}
	if err != nil {
		b.logger.Warn("cache eviction failed", "cache", b.cacheName, "error", err)
		b.observer.CacheWriteFailed(b.cacheName, err)
	}
}
