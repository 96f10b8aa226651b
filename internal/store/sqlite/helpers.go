package sqlite

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/revittco/swcache/internal/store"
)

// Timestamps are unix nanoseconds so oldest-first ordering is exact.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromNanos(n.Int64)
}

func marshalHeader(h http.Header) string {
	if len(h) == 0 {
		return "{}"
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalHeader(s string) http.Header {
	h := http.Header{}
	if s == "" || s == "{}" {
		return h
	}
	_ = json.Unmarshal([]byte(s), &h)
	return h
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
