// Package memory provides an in-process store.Store for ephemeral mode and
// tests. Contents are lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/revittco/swcache/internal/store"
)

var _ store.Store = (*Store)(nil)

type namedCache struct {
	created time.Time
	seq     uint64 // creation order tiebreak
	entries map[string]*record
}

type record struct {
	entry *store.Entry
	seq   uint64 // write order tiebreak
}

// Store keeps caches in maps guarded by a mutex. Entries are cloned on the
// way in and out.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	caches map[string]*namedCache
	seq    uint64
	closed bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{caches: make(map[string]*namedCache)}
}

func (s *Store) PutEntry(_ context.Context, e *store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Wrap("put", e.CacheName, store.ErrClosed)
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	s.seq++
	c, ok := s.caches[e.CacheName]
	if !ok {
		c = &namedCache{created: e.StoredAt, seq: s.seq, entries: make(map[string]*record)}
		s.caches[e.CacheName] = c
	}
	c.entries[e.Key] = &record{entry: e.Clone(), seq: s.seq}
	return nil
}

func (s *Store) GetEntry(_ context.Context, cacheName, key string) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.Wrap("get", cacheName, store.ErrClosed)
	}
	c, ok := s.caches[cacheName]
	if !ok {
		return nil, store.ErrNotFound
	}
	r, ok := c.entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r.entry.Clone(), nil
}

func (s *Store) MatchEntry(_ context.Context, key string) (*store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.Wrap("match", "*", store.ErrClosed)
	}
	for _, name := range s.orderedNamesLocked() {
		if r, ok := s.caches[name].entries[key]; ok {
			return r.entry.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteEntry(_ context.Context, cacheName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[cacheName]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := c.entries[key]; !ok {
		return store.ErrNotFound
	}
	delete(c.entries, key)
	return nil
}

func (s *Store) ListEntries(_ context.Context, cacheName string) ([]store.EntryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[cacheName]
	if !ok {
		return nil, nil
	}
	recs := sortedLocked(c)
	out := make([]store.EntryInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, store.EntryInfo{
			Key:      r.entry.Key,
			URL:      r.entry.URL,
			Status:   r.entry.Status,
			Size:     len(r.entry.Body),
			StoredAt: r.entry.StoredAt,
		})
	}
	return out, nil
}

func (s *Store) TrimEntries(_ context.Context, cacheName string, maxEntries int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[cacheName]
	if !ok {
		return nil, nil
	}
	if maxEntries < 0 {
		maxEntries = 0
	}
	recs := sortedLocked(c)
	var evicted []string
	for len(recs) > maxEntries {
		key := recs[0].entry.Key
		delete(c.entries, key)
		evicted = append(evicted, key)
		recs = recs[1:]
	}
	return evicted, nil
}

func (s *Store) DeleteEntriesBefore(_ context.Context, cacheName string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[cacheName]
	if !ok {
		return 0, nil
	}
	n := 0
	for key, r := range c.entries {
		if r.entry.StoredAt.Before(cutoff) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListCaches(_ context.Context) ([]store.CacheInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.orderedNamesLocked()
	out := make([]store.CacheInfo, 0, len(names))
	for _, name := range names {
		ci := store.CacheInfo{Name: name}
		for _, r := range s.caches[name].entries {
			ci.Entries++
			ci.Bytes += int64(len(r.entry.Body))
			at := r.entry.StoredAt
			if ci.Oldest.IsZero() || at.Before(ci.Oldest) {
				ci.Oldest = at
			}
			if at.After(ci.Newest) {
				ci.Newest = at
			}
		}
		out = append(out, ci)
	}
	return out, nil
}

func (s *Store) DeleteCache(_ context.Context, cacheName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[cacheName]
	if !ok {
		return 0, store.ErrNotFound
	}
	delete(s.caches, cacheName)
	return len(c.entries), nil
}

// Tx serializes transactions and restores the prior contents if fn fails.
// Writes made outside the transaction while it runs are lost on rollback.
func (s *Store) Tx(_ context.Context, fn func(store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.caches = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) snapshotLocked() map[string]*namedCache {
	out := make(map[string]*namedCache, len(s.caches))
	for name, c := range s.caches {
		cp := &namedCache{created: c.created, seq: c.seq, entries: make(map[string]*record, len(c.entries))}
		for k, r := range c.entries {
			cp.entries[k] = r
		}
		out[name] = cp
	}
	return out
}

func (s *Store) orderedNamesLocked() []string {
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.caches[names[i]], s.caches[names[j]]
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
		return a.seq < b.seq
	})
	return names
}

// sortedLocked returns the cache's records oldest first.
func sortedLocked(c *namedCache) []*record {
	recs := make([]*record, 0, len(c.entries))
	for _, r := range c.entries {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].entry.StoredAt, recs[j].entry.StoredAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return recs[i].seq < recs[j].seq
	})
	return recs
}
