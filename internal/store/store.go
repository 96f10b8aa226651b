package store

import (
	"context"
	"time"
)

// Store is the composite interface for cache persistence.
type Store interface {
	EntryStore
	CacheStore
	Tx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

// EntryStore manages entries inside named caches.
type EntryStore interface {
	// PutEntry inserts or overwrites the entry at (CacheName, Key).
	PutEntry(ctx context.Context, e *Entry) error
	// GetEntry returns ErrNotFound when the key is absent.
	GetEntry(ctx context.Context, cacheName, key string) (*Entry, error)
	// MatchEntry looks the key up across every cache, oldest cache first.
	MatchEntry(ctx context.Context, key string) (*Entry, error)
	DeleteEntry(ctx context.Context, cacheName, key string) error
	// ListEntries returns entry metadata ordered oldest first.
	ListEntries(ctx context.Context, cacheName string) ([]EntryInfo, error)
	// TrimEntries deletes the oldest entries until at most maxEntries remain
	// and returns the deleted keys.
	TrimEntries(ctx context.Context, cacheName string, maxEntries int) ([]string, error)
	// DeleteEntriesBefore deletes entries stored before cutoff.
	DeleteEntriesBefore(ctx context.Context, cacheName string, cutoff time.Time) (int, error)
}

// CacheStore manages named caches as a whole.
type CacheStore interface {
	ListCaches(ctx context.Context) ([]CacheInfo, error)
	DeleteCache(ctx context.Context, cacheName string) (int, error)
}
