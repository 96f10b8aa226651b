package strategy

// Observer receives strategy side-effect outcomes. metrics.Metrics
// implements it.
type Observer interface {
	CacheWriteFailed(cache string, err error)
	Evicted(cache string, n int)
	Refreshed(cache string, err error)
}

type nopObserver struct{}

func (nopObserver) CacheWriteFailed(string, error) {}
func (nopObserver) Evicted(string, int)            {}
func (nopObserver) Refreshed(string, error)        {}
