package routing

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/revittco/swcache/internal/cache"
	"github.com/revittco/swcache/internal/strategy"
)

// MethodAny makes a route match every method.
const MethodAny = "*"

// memoSize bounds the number of memoized request resolutions.
const memoSize = 4096

// Route binds a matcher to the strategy that handles what it matches.
type Route struct {
	ID      string
	Matcher Matcher
	// Method defaults to GET.
	Method  string
	Handler strategy.Strategy
}

// Matches checks the method, then the matcher.
func (rt *Route) Matches(r *Request) bool {
	method := rt.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != MethodAny && !strings.EqualFold(method, r.Method) {
		return false
	}
	return rt.Matcher.Matches(r)
}

// Registry is the ordered route list. The first route that matches a
// request wins; later overlapping routes are shadowed, not merged.
type Registry struct {
	mu     sync.RWMutex
	routes []*Route
	memo   *cache.Cache[*Route]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{memo: cache.New[*Route](memoSize, 0)}
}

// Register appends rt. Duplicates and overlaps are allowed.
func (g *Registry) Register(rt *Route) error {
	if rt == nil || rt.Matcher == nil {
		return errors.New("route needs a matcher")
	}
	if rt.Handler == nil {
		return errors.New("route needs a strategy")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, rt)
	// Resolutions made against the old list may now be wrong.
	g.memo = cache.New[*Route](memoSize, 0)
	return nil
}

// Match returns the first route matching r, or nil.
func (g *Registry) Match(r *Request) *Route {
	g.mu.RLock()
	routes, memo := g.routes, g.memo
	g.mu.RUnlock()

	rt, _ := memo.GetOrLoad(memoKey(r), func() (*Route, error) {
		return firstMatch(routes, r), nil
	})
	return rt
}

// Routes returns the routes in registration order.
func (g *Registry) Routes() []*Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Route, len(g.routes))
	copy(out, g.routes)
	return out
}

// Len returns the number of registered routes.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.routes)
}

// MemoStats reports the resolution memo's hit rate.
func (g *Registry) MemoStats() cache.Stats {
	g.mu.RLock()
	memo := g.memo
	g.mu.RUnlock()
	return memo.Stats()
}

func firstMatch(routes []*Route, r *Request) *Route {
	for _, rt := range routes {
		if rt.Matches(r) {
			return rt
		}
	}
	return nil
}

func memoKey(r *Request) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatBool(r.SameOrigin))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatBool(r.Navigate))
	b.WriteByte(' ')
	b.WriteString(r.Href())
	return b.String()
}
