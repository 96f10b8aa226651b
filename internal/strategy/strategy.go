package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/store"
)

// Kind names a caching strategy.
type Kind string

const (
	KindCacheFirst           Kind = "cache-first"
	KindStaleWhileRevalidate Kind = "stale-while-revalidate"
	KindNetworkFirst         Kind = "network-first"
	KindNetworkOnly          Kind = "network-only"
	KindCacheOnly            Kind = "cache-only"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{
	KindCacheFirst, KindStaleWhileRevalidate, KindNetworkFirst,
	KindNetworkOnly, KindCacheOnly,
}

// ParseKind accepts kebab, snake, camel and Pascal spellings
// ("stale-while-revalidate", "StaleWhileRevalidate", ...).
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	for _, k := range Kinds {
		if strings.ReplaceAll(string(k), "-", "") == norm {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// DefaultNetworkTimeout bounds NetworkFirst before it falls back to cache.
const DefaultNetworkTimeout = 10 * time.Second

// ErrNoResponse means a cache-only lookup found nothing.
var ErrNoResponse = errors.New("no cached response")

// Source says where a response came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Request is one intercepted request with its cache key.
type Request struct {
	HTTP *http.Request
	Key  string
}

// Result is a strategy's answer.
type Result struct {
	Entry  *store.Entry
	Source Source
	// Revalidating is set when a cached response was served and a
	// background refresh was started.
	Revalidating bool
	// Fallback is set when the network failed and the cache answered.
	Fallback bool
}

// Strategy answers a request from the network, a named cache, or both.
type Strategy interface {
	Kind() Kind
	CacheName() string
	Handle(ctx context.Context, req *Request) (*Result, error)
}

// Config is the per-route strategy configuration.
type Config struct {
	CacheName         string
	Expiration        Expiration
	NetworkTimeout    time.Duration
	CacheableStatuses []int
}

// Deps are shared by every strategy instance.
type Deps struct {
	Store      store.Store
	Fetcher    network.Fetcher
	Background *Background // required for stale-while-revalidate
	Observer   Observer    // optional
	Logger     *slog.Logger
	Now        func() time.Time
}

// New builds a strategy of the given kind.
func New(kind Kind, cfg Config, deps Deps) (Strategy, error) {
	if cfg.CacheName == "" {
		return nil, errors.New("cache name is required")
	}
	if deps.Store == nil || deps.Fetcher == nil {
		return nil, errors.New("store and fetcher are required")
	}
	b := newBase(cfg, deps)

	switch kind {
	case KindCacheFirst:
		return &CacheFirst{base: b}, nil
	case KindStaleWhileRevalidate:
		if deps.Background == nil {
			return nil, errors.New("stale-while-revalidate needs a background group")
		}
		return &StaleWhileRevalidate{base: b, bg: deps.Background}, nil
	case KindNetworkFirst:
		timeout := cfg.NetworkTimeout
		if timeout == 0 {
			timeout = DefaultNetworkTimeout
		}
		return &NetworkFirst{base: b, timeout: timeout}, nil
	case KindNetworkOnly:
		return &NetworkOnly{base: b, timeout: cfg.NetworkTimeout}, nil
	case KindCacheOnly:
		return &CacheOnly{base: b}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
}
