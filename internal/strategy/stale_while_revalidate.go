package strategy

import (
	"context"
	"net/http"
)

// StaleWhileRevalidate answers from cache when it can and refreshes the
// entry in the background. Misses block on the network.
type StaleWhileRevalidate struct {
	base
	bg *Background
}

func (s *StaleWhileRevalidate) Kind() Kind { return KindStaleWhileRevalidate }

func (s *StaleWhileRevalidate) Handle(ctx context.Context, req *Request) (*Result, error) {
	if e, ok := s.lookup(ctx, req.Key); ok {
		s.revalidate(ctx, req)
		return &Result{Entry: e, Source: SourceCache, Revalidating: true}, nil
	}
	e, err := s.fill(ctx, req.HTTP)
	if err != nil {
		return nil, err
	}
	s.put(ctx, req.Key, e)
	return &Result{Entry: e, Source: SourceNetwork}, nil
}

func (s *StaleWhileRevalidate) revalidate(ctx context.Context, req *Request) {
	key := req.Key
	s.bg.Go(ctx, s.cacheName+"\x00"+key, func(ctx context.Context) {
		r := req.HTTP.Clone(ctx)
		r.Body = http.NoBody
		r.ContentLength = 0

		e, err := s.fill(ctx, r)
		s.observer.Refreshed(s.cacheName, err)
		if err != nil {
			s.logger.Debug("background refresh failed", "cache", s.cacheName, "key", key, "error", err)
			return
		}
		s.put(ctx, key, e)
	})
}
