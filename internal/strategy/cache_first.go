package strategy

import "context"

// CacheFirst serves a fresh cached entry without touching the network.
// On a miss it fetches, stores and returns the network response.
type CacheFirst struct {
	base
}

func (s *CacheFirst) Kind() Kind { return KindCacheFirst }

func (s *CacheFirst) Handle(ctx context.Context, req *Request) (*Result, error) {
	if e, ok := s.lookup(ctx, req.Key); ok {
		return &Result{Entry: e, Source: SourceCache}, nil
	}
	e, err := s.fill(ctx, req.HTTP)
	if err != nil {
		return nil, err
	}
	s.put(ctx, req.Key, e)
	return &Result{Entry: e, Source: SourceNetwork}, nil
}
