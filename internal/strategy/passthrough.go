package strategy

import (
	"context"
	"time"
)

// NetworkOnly always fetches and never reads or writes the cache.
type NetworkOnly struct {
	base
	timeout time.Duration
}

func (s *NetworkOnly) Kind() Kind { return KindNetworkOnly }

func (s *NetworkOnly) Handle(ctx context.Context, req *Request) (*Result, error) {
	fctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	e, err := s.fetch(fctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{Entry: e, Source: SourceNetwork}, nil
}

// CacheOnly answers from the cache and never touches the network.
type CacheOnly struct {
	base
}

func (s *CacheOnly) Kind() Kind { return KindCacheOnly }

func (s *CacheOnly) Handle(ctx context.Context, req *Request) (*Result, error) {
	if e, ok := s.lookup(ctx, req.Key); ok {
		return &Result{Entry: e, Source: SourceCache}, nil
	}
	return nil, ErrNoResponse
}
