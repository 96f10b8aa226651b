package strategy

import (
	"context"
	"time"

	"github.com/revittco/swcache/internal/store"
)

// Expiration limits a named cache. Zero values disable a limit.
type Expiration struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Enabled reports whether any limit is set.
func (x Expiration) Enabled() bool {
	return x.MaxEntries > 0 || x.MaxAge > 0
}

// Fresh reports whether e is young enough to serve at now.
func (x Expiration) Fresh(e *store.Entry, now time.Time) bool {
	if x.MaxAge <= 0 {
		return true
	}
	return e.Age(now) <= x.MaxAge
}

// enforce drops expired entries, then evicts oldest-first down to
// MaxEntries. It returns how many entries were removed.
func (x Expiration) enforce(ctx context.Context, s store.EntryStore, cacheName string, now time.Time) (int, error) {
	removed := 0
	if x.MaxAge > 0 {
		n, err := s.DeleteEntriesBefore(ctx, cacheName, now.Add(-x.MaxAge))
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if x.MaxEntries > 0 {
		evicted, err := s.TrimEntries(ctx, cacheName, x.MaxEntries)
		if err != nil {
			return removed, err
		}
		removed += len(evicted)
	}
	return removed, nil
}
