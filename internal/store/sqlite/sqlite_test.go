package sqlite_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/revittco/swcache/internal/secrets"
	"github.com/revittco/swcache/internal/store"
	"github.com/revittco/swcache/internal/store/sqlite"
)

func newTestDB(t *testing.T, opts ...sqlite.Option) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), t.TempDir()+"/test.db", opts...)
	if err != nil {
		t.Fatalf("new test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func entry(cache, key string, at time.Time, body string) *store.Entry {
	return &store.Entry{
		CacheName: cache,
		Key:       key,
		URL:       key,
		Status:    http.StatusOK,
		Header:    http.Header{"Content-Type": {"text/plain"}},
		Body:      []byte(body),
		StoredAt:  at,
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestEntryCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	e := entry("app-cache-images", "https://example.com/a.png", base, "png-bytes")
	if err := db.PutEntry(ctx, e); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := db.GetEntry(ctx, "app-cache-images", "https://example.com/a.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Body) != "png-bytes" {
		t.Fatalf("body = %q, want %q", got.Body, "png-bytes")
	}
	if got.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("content-type = %q", got.Header.Get("Content-Type"))
	}
	if !got.StoredAt.Equal(base) {
		t.Fatalf("stored_at = %v, want %v", got.StoredAt, base)
	}

	// Overwrite.
	e2 := entry("app-cache-images", "https://example.com/a.png", base.Add(time.Minute), "new")
	if err := db.PutEntry(ctx, e2); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = db.GetEntry(ctx, "app-cache-images", "https://example.com/a.png")
	if string(got.Body) != "new" {
		t.Fatalf("body after overwrite = %q", got.Body)
	}
	list, _ := db.ListEntries(ctx, "app-cache-images")
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}

	// Delete.
	if err := db.DeleteEntry(ctx, "app-cache-images", "https://example.com/a.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetEntry(ctx, "app-cache-images", "https://example.com/a.png"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := db.DeleteEntry(ctx, "app-cache-images", "https://example.com/a.png"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestTrimEntries_OldestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, k := range []string{"a", "b", "c", "d"} {
		if err := db.PutEntry(ctx, entry("imgs", k, base.Add(time.Duration(i)*time.Second), k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	evicted, err := db.TrimEntries(ctx, "imgs", 3)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("evicted = %v, want [a]", evicted)
	}

	list, _ := db.ListEntries(ctx, "imgs")
	var keys []string
	for _, e := range list {
		keys = append(keys, e.Key)
	}
	if strings.Join(keys, ",") != "b,c,d" {
		t.Fatalf("remaining = %v, want b,c,d", keys)
	}

	evicted, err = db.TrimEntries(ctx, "imgs", 10)
	if err != nil || len(evicted) != 0 {
		t.Fatalf("trim under limit: evicted=%v err=%v", evicted, err)
	}
}

func TestTrimEntries_SameTimestampUsesWriteOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"first", "second", "third", "first"} {
		if err := db.PutEntry(ctx, entry("imgs", k, base, k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	list, _ := db.ListEntries(ctx, "imgs")
	var keys []string
	for _, e := range list {
		keys = append(keys, e.Key)
	}
	if strings.Join(keys, ",") != "second,third,first" {
		t.Fatalf("order = %v, want second,third,first", keys)
	}

	evicted, err := db.TrimEntries(ctx, "imgs", 2)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "second" {
		t.Fatalf("evicted = %v, want [second]", evicted)
	}
}

func TestDeleteEntriesBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.PutEntry(ctx, entry("fonts", "old", base, "x"))
	_ = db.PutEntry(ctx, entry("fonts", "new", base.Add(time.Hour), "y"))
	_ = db.PutEntry(ctx, entry("other", "old", base, "z"))

	n, err := db.DeleteEntriesBefore(ctx, "fonts", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if _, err := db.GetEntry(ctx, "other", "old"); err != nil {
		t.Fatalf("other cache should be untouched: %v", err)
	}
}

func TestMatchEntry_AcrossCaches(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.MatchEntry(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("match on empty: err = %v", err)
	}

	_ = db.PutEntry(ctx, entry("first", "k", base, "from-first"))
	_ = db.PutEntry(ctx, entry("second", "k", base.Add(time.Second), "from-second"))

	got, err := db.MatchEntry(ctx, "k")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got.CacheName != "first" {
		t.Fatalf("matched cache = %q, want first", got.CacheName)
	}
}

func TestListAndDeleteCaches(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.PutEntry(ctx, entry("a", "1", base, "12345"))
	_ = db.PutEntry(ctx, entry("a", "2", base.Add(time.Second), "1"))
	_ = db.PutEntry(ctx, entry("b", "1", base, ""))

	caches, err := db.ListCaches(ctx)
	if err != nil {
		t.Fatalf("list caches: %v", err)
	}
	if len(caches) != 2 {
		t.Fatalf("caches = %d, want 2", len(caches))
	}
	if caches[0].Name != "a" || caches[0].Entries != 2 || caches[0].Bytes != 6 {
		t.Fatalf("cache a = %+v", caches[0])
	}
	if !caches[0].Oldest.Equal(base) || !caches[0].Newest.Equal(base.Add(time.Second)) {
		t.Fatalf("cache a range = %v..%v", caches[0].Oldest, caches[0].Newest)
	}

	n, err := db.DeleteCache(ctx, "a")
	if err != nil || n != 2 {
		t.Fatalf("delete cache: n=%d err=%v", n, err)
	}
	if _, err := db.DeleteCache(ctx, "a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete missing cache: err = %v", err)
	}
	caches, _ = db.ListCaches(ctx)
	if len(caches) != 1 || caches[0].Name != "b" {
		t.Fatalf("caches after delete = %+v", caches)
	}
}

func TestTxRollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := db.Tx(ctx, func(tx store.Store) error {
		if err := tx.PutEntry(ctx, entry("precache", "k", base, "v")); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("tx err = %v", err)
	}
	if _, err := db.GetEntry(ctx, "precache", "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("entry survived rollback: err = %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	db, err := sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.PutEntry(ctx, entry("runtime", "k", base, "kept")); err != nil {
		t.Fatalf("put: %v", err)
	}
	db.Close()

	db, err = sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.GetEntry(ctx, "runtime", "k")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got.Body) != "kept" {
		t.Fatalf("body = %q", got.Body)
	}
}

func TestCompressedAndSealedBodies(t *testing.T) {
	enc, err := secrets.NewEphemeralEncryptor()
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	ctx := context.Background()
	big := bytes.Repeat([]byte("swcache "), 1024)

	tests := []struct {
		name string
		opts []sqlite.Option
	}{
		{"identity", []sqlite.Option{sqlite.WithCompression(false)}},
		{"zstd", nil},
		{"age", []sqlite.Option{sqlite.WithCompression(false), sqlite.WithSealer(enc)}},
		{"zstd+age", []sqlite.Option{sqlite.WithSealer(enc)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t, tt.opts...)
			e := entry("c", "k", base, "")
			e.Body = big
			if err := db.PutEntry(ctx, e); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := db.GetEntry(ctx, "c", "k")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !bytes.Equal(got.Body, big) {
				t.Fatalf("body mismatch: got %d bytes", len(got.Body))
			}
			list, _ := db.ListEntries(ctx, "c")
			if list[0].Size != len(big) {
				t.Fatalf("size = %d, want %d", list[0].Size, len(big))
			}
		})
	}
}

func TestSealedBodyWithoutKey(t *testing.T) {
	enc, _ := secrets.NewEphemeralEncryptor()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sealed.db")

	db, err := sqlite.New(ctx, path, sqlite.WithSealer(enc))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = db.PutEntry(ctx, entry("c", "k", base, "secret"))
	db.Close()

	db, err = sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	_, err = db.GetEntry(ctx, "c", "k")
	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *store.StorageError", err)
	}
}
