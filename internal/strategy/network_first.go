package strategy

import (
	"context"
	"time"
)

// NetworkFirst prefers a timely network response and falls back to the
// cache when the network fails or times out.
type NetworkFirst struct {
	base
	timeout time.Duration
}

func (s *NetworkFirst) Kind() Kind { return KindNetworkFirst }

func (s *NetworkFirst) Handle(ctx context.Context, req *Request) (*Result, error) {
	fctx, cancel := withTimeout(ctx, s.timeout)
	e, err := s.fill(fctx, req.HTTP)
	cancel()
	if err == nil {
		s.put(ctx, req.Key, e)
		return &Result{Entry: e, Source: SourceNetwork}, nil
	}

	if cached, ok := s.lookup(ctx, req.Key); ok {
		s.logger.Debug("network failed, serving cached entry", "cache", s.cacheName, "key", req.Key, "error", err)
		return &Result{Entry: cached, Source: SourceCache, Fallback: true}, nil
	}
	return nil, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
