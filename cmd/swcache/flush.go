package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/revittco/swcache/internal/store"
)

// cmdFlush deletes the named caches, or every cache when none is named.
func cmdFlush(args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	names := applyFlags(cfg, args)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	flushed, err := flushCaches(ctx, st, names)
	for _, f := range flushed {
		fmt.Printf("Flushed %s (%d entries)\n", f.name, f.entries)
	}
	return err
}

type flushResult struct {
	name    string
	entries int
}

func flushCaches(ctx context.Context, st store.CacheStore, names []string) ([]flushResult, error) {
	if len(names) == 0 {
		caches, err := st.ListCaches(ctx)
		if err != nil {
			return nil, fmt.Errorf("list caches: %w", err)
		}
		for _, c := range caches {
			names = append(names, c.Name)
		}
	}

	var out []flushResult
	var errs []error
	for _, name := range names {
		n, err := st.DeleteCache(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("cache %q not found", name))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", name, err))
			continue
		}
		out = append(out, flushResult{name: name, entries: n})
	}
	return out, errors.Join(errs...)
}
