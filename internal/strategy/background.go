package strategy

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Background runs detached cache refreshes. Callers never wait on them;
// Wait exists for shutdown and tests. Concurrent refreshes of the same key
// collapse into one.
type Background struct {
	wg    sync.WaitGroup
	group singleflight.Group
}

// NewBackground returns an empty group.
func NewBackground() *Background {
	return &Background{}
}

// Go runs fn detached from ctx's cancellation (values are kept). A call
// with a key already in flight joins that run instead of starting another.
func (b *Background) Go(ctx context.Context, key string, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	ch := b.group.DoChan(key, func() (any, error) {
		fn(ctx)
		return nil, nil
	})
	go func() {
		defer b.wg.Done()
		<-ch
	}()
}

// Wait blocks until all running refreshes finish or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
