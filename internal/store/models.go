package store

import (
	"net/http"
	"time"
)

// Entry is a cached response stored under a cache name and request key.
type Entry struct {
	CacheName string      `json:"cache_name"`
	Key       string      `json:"key"`
	URL       string      `json:"url"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header,omitempty"`
	Body      []byte      `json:"-"`
	StoredAt  time.Time   `json:"stored_at"`
}

// Age returns how long ago the entry was stored relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Clone returns a deep copy so callers can't mutate stored state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}

// EntryInfo describes a cached entry without its body.
type EntryInfo struct {
	Key      string    `json:"key"`
	URL      string    `json:"url"`
	Status   int       `json:"status"`
	Size     int       `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// CacheInfo summarizes one named cache.
type CacheInfo struct {
	Name    string    `json:"name"`
	Entries int       `json:"entries"`
	Bytes   int64     `json:"bytes"`
	Oldest  time.Time `json:"oldest"`
	Newest  time.Time `json:"newest"`
}
