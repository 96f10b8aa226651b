package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/revittco/swcache/internal/store"
)

const entryColumns = `cache_name, cache_key, url, status, headers, body, encoding, stored_at`

func (d *DB) PutEntry(ctx context.Context, e *store.Entry) error {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	body, encoding, err := d.codec.encode(e.Body)
	if err != nil {
		return store.Wrap("put", e.CacheName, err)
	}

	err = d.withTx(ctx, func(q queryable) error {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`,
			e.CacheName, toNanos(e.StoredAt),
		); err != nil {
			return fmt.Errorf("ensure cache: %w", err)
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO cache_entries
				(cache_name, cache_key, url, status, headers, body, encoding, size, stored_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
				(SELECT COALESCE(MAX(seq), 0) + 1 FROM cache_entries))
			ON CONFLICT (cache_name, cache_key) DO UPDATE SET
				url = excluded.url,
				status = excluded.status,
				headers = excluded.headers,
				body = excluded.body,
				encoding = excluded.encoding,
				size = excluded.size,
				stored_at = excluded.stored_at,
				seq = excluded.seq`,
			e.CacheName, e.Key, e.URL, e.Status, marshalHeader(e.Header),
			body, encoding, len(e.Body), toNanos(e.StoredAt),
		)
		return err
	})
	return store.Wrap("put", e.CacheName, err)
}

func (d *DB) GetEntry(ctx context.Context, cacheName, key string) (*store.Entry, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM cache_entries WHERE cache_name = ? AND cache_key = ?`,
		cacheName, key)
	e, err := d.scanEntry(row)
	return e, store.Wrap("get", cacheName, err)
}

func (d *DB) MatchEntry(ctx context.Context, key string) (*store.Entry, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT e.cache_name, e.cache_key, e.url, e.status, e.headers,
		       e.body, e.encoding, e.stored_at
		FROM cache_entries e
		JOIN caches c ON c.name = e.cache_name
		WHERE e.cache_key = ?
		ORDER BY c.created_at ASC, c.name ASC
		LIMIT 1`, key)
	e, err := d.scanEntry(row)
	return e, store.Wrap("match", "*", err)
}

func (d *DB) DeleteEntry(ctx context.Context, cacheName, key string) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND cache_key = ?`,
		cacheName, key)
	if err != nil {
		return store.Wrap("delete", cacheName, err)
	}
	return checkRowsAffected(res)
}

func (d *DB) ListEntries(ctx context.Context, cacheName string) ([]store.EntryInfo, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT cache_key, url, status, size, stored_at
		FROM cache_entries
		WHERE cache_name = ?
		ORDER BY stored_at ASC, seq ASC`, cacheName)
	if err != nil {
		return nil, store.Wrap("list", cacheName, err)
	}
	defer rows.Close()

	var out []store.EntryInfo
	for rows.Next() {
		var info store.EntryInfo
		var storedAt int64
		if err := rows.Scan(&info.Key, &info.URL, &info.Status, &info.Size, &storedAt); err != nil {
			return nil, store.Wrap("list", cacheName, err)
		}
		info.StoredAt = fromNanos(storedAt)
		out = append(out, info)
	}
	return out, store.Wrap("list", cacheName, rows.Err())
}

func (d *DB) TrimEntries(ctx context.Context, cacheName string, maxEntries int) ([]string, error) {
	if maxEntries < 0 {
		maxEntries = 0
	}
	var evicted []string
	err := d.withTx(ctx, func(q queryable) error {
		rows, err := q.QueryContext(ctx, `
			SELECT cache_key FROM cache_entries
			WHERE cache_name = ?
			ORDER BY stored_at DESC, seq DESC
			LIMIT -1 OFFSET ?`, cacheName, maxEntries)
		if err != nil {
			return err
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return err
			}
			evicted = append(evicted, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, key := range evicted {
			if _, err := q.ExecContext(ctx,
				`DELETE FROM cache_entries WHERE cache_name = ? AND cache_key = ?`,
				cacheName, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.Wrap("trim", cacheName, err)
	}
	return evicted, nil
}

func (d *DB) DeleteEntriesBefore(ctx context.Context, cacheName string, cutoff time.Time) (int, error) {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_name = ? AND stored_at < ?`,
		cacheName, toNanos(cutoff))
	if err != nil {
		return 0, store.Wrap("expire", cacheName, err)
	}
	n, err := res.RowsAffected()
	return int(n), store.Wrap("expire", cacheName, err)
}

func (d *DB) ListCaches(ctx context.Context) ([]store.CacheInfo, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT c.name, COUNT(e.cache_key), COALESCE(SUM(e.size), 0),
		       MIN(e.stored_at), MAX(e.stored_at)
		FROM caches c
		LEFT JOIN cache_entries e ON e.cache_name = c.name
		GROUP BY c.name
		ORDER BY c.created_at ASC, c.name ASC`)
	if err != nil {
		return nil, store.Wrap("list", "*", err)
	}
	defer rows.Close()

	var out []store.CacheInfo
	for rows.Next() {
		var ci store.CacheInfo
		var oldest, newest sql.NullInt64
		if err := rows.Scan(&ci.Name, &ci.Entries, &ci.Bytes, &oldest, &newest); err != nil {
			return nil, store.Wrap("list", "*", err)
		}
		ci.Oldest = fromNullNanos(oldest)
		ci.Newest = fromNullNanos(newest)
		out = append(out, ci)
	}
	return out, store.Wrap("list", "*", rows.Err())
}

func (d *DB) DeleteCache(ctx context.Context, cacheName string) (int, error) {
	var n int
	err := d.withTx(ctx, func(q queryable) error {
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM cache_entries WHERE cache_name = ?`, cacheName,
		).Scan(&n); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE cache_name = ?`, cacheName); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, cacheName)
		if err != nil {
			return err
		}
		return checkRowsAffected(res)
	})
	if err != nil {
		return 0, store.Wrap("delete", cacheName, err)
	}
	return n, nil
}

func (d *DB) scanEntry(row rowScanner) (*store.Entry, error) {
	var e store.Entry
	var headers, encoding string
	var body []byte
	var storedAt int64
	err := row.Scan(
		&e.CacheName, &e.Key, &e.URL, &e.Status, &headers,
		&body, &encoding, &storedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Body, err = d.codec.decode(body, encoding)
	if err != nil {
		return nil, err
	}
	e.Header = unmarshalHeader(headers)
	e.StoredAt = fromNanos(storedAt)
	return &e, nil
}
