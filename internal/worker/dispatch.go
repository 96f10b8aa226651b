package worker

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/routing"
	"github.com/revittco/swcache/internal/store"
	"github.com/revittco/swcache/internal/strategy"
)

// Handler names the stage that answered a request.
type Handler string

const (
	HandlerInactive    Handler = "inactive"
	HandlerPrecache    Handler = "precache"
	HandlerRoute       Handler = "route"
	HandlerNavigation  Handler = "navigation"
	HandlerPassthrough Handler = "passthrough"
)

// Response is a dispatched answer.
type Response struct {
	Entry        *store.Entry
	Source       strategy.Source
	Handler      Handler
	RouteID      string
	Strategy     string
	CacheName    string
	Revalidating bool
}

// Decision is what Dispatch would do with a request, computed without
// touching the store or the network.
type Decision struct {
	URL         string  `json:"url"`
	Key         string  `json:"key"`
	Method      string  `json:"method"`
	SameOrigin  bool    `json:"same_origin"`
	Navigate    bool    `json:"navigate"`
	Handler     Handler `json:"handler"`
	RouteID     string  `json:"route_id,omitempty"`
	Strategy    string  `json:"strategy,omitempty"`
	CacheName   string  `json:"cache_name,omitempty"`
	PrecacheKey string  `json:"precache_key,omitempty"`
	FallbackURL string  `json:"fallback_url,omitempty"`
}

// Resolve reports which stage would answer r.
func (w *Worker) Resolve(r *http.Request) Decision {
	return w.resolve(r, w.Activated())
}

// Explain reports which stage would answer r once the worker is active.
func (w *Worker) Explain(r *http.Request) Decision {
	return w.resolve(r, true)
}

func (w *Worker) resolve(r *http.Request, active bool) Decision {
	req := w.requestFor(r)
	d := Decision{
		URL:        req.URL.String(),
		Key:        strategy.CacheKey(req.URL, nil),
		Method:     r.Method,
		SameOrigin: req.SameOrigin,
		Navigate:   req.Navigate,
	}

	if !active {
		d.Handler = HandlerInactive
		return d
	}
	if r.Method == http.MethodGet {
		if key, ok := w.precacher.CacheKeyFor(req.URL); ok {
			d.Handler = HandlerPrecache
			d.PrecacheKey = key
			d.CacheName = w.precacher.CacheName()
			return d
		}
	}
	if rt := w.registry.Match(req); rt != nil {
		d.Handler = HandlerRoute
		d.RouteID = rt.ID
		d.Strategy = string(rt.Handler.Kind())
		d.CacheName = rt.Handler.CacheName()
		return d
	}
	if w.useFallback(req) {
		d.Handler = HandlerNavigation
		d.FallbackURL = w.fallback.String()
		return d
	}
	d.Handler = HandlerPassthrough
	return d
}

// Dispatch answers r. Stages are tried in order: network only before
// activation, then the precache, the first matching route, the navigation
// fallback and finally the passthrough.
func (w *Worker) Dispatch(ctx context.Context, r *http.Request) (*Response, error) {
	start := w.now()
	req := w.requestFor(r)
	key := strategy.CacheKey(req.URL, nil)

	out := r.Clone(ctx)
	out.URL = req.URL
	out.RequestURI = ""

	resp, err := w.dispatch(ctx, req, &strategy.Request{HTTP: out, Key: key})
	w.observe(ctx, r, req, resp, err, w.now().Sub(start))
	return resp, err
}

func (w *Worker) dispatch(ctx context.Context, req *routing.Request, sreq *strategy.Request) (*Response, error) {
	if !w.Activated() {
		e, err := w.fetcher.Fetch(ctx, sreq.HTTP)
		if err != nil {
			return nil, err
		}
		return &Response{Entry: e, Source: strategy.SourceNetwork, Handler: HandlerInactive}, nil
	}

	if req.Method == http.MethodGet {
		if resp, ok, err := w.fromPrecache(ctx, req.URL, sreq); ok {
			return resp, err
		}
	}

	if rt := w.registry.Match(req); rt != nil {
		res, err := rt.Handler.Handle(ctx, sreq)
		resp := &Response{
			Handler:   HandlerRoute,
			RouteID:   rt.ID,
			Strategy:  string(rt.Handler.Kind()),
			CacheName: rt.Handler.CacheName(),
		}
		if err != nil {
			return resp, err
		}
		resp.Entry = res.Entry
		resp.Source = res.Source
		resp.Revalidating = res.Revalidating
		return resp, nil
	}

	if w.useFallback(req) {
		return w.navigationFallback(ctx, sreq)
	}

	return w.passthrough(ctx, sreq)
}

// fromPrecache serves a precached URL, falling back to the network without
// storing when the entry is missing. ok is false when u is not precached.
func (w *Worker) fromPrecache(ctx context.Context, u *url.URL, sreq *strategy.Request) (*Response, bool, error) {
	target, listed := w.precacher.URLFor(u)
	if !listed {
		return nil, false, nil
	}
	resp := &Response{Handler: HandlerPrecache, CacheName: w.precacher.CacheName()}

	e, err := w.precacher.Lookup(ctx, u)
	if err == nil {
		resp.Entry, resp.Source = e, strategy.SourceCache
		return resp, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		w.logger.Warn("precache read failed", "url", target, "error", err)
	}

	e, err = w.fetcher.Fetch(ctx, sreq.HTTP)
	if err != nil {
		return resp, true, err
	}
	resp.Entry, resp.Source = e, strategy.SourceNetwork
	return resp, true, nil
}

func (w *Worker) useFallback(req *routing.Request) bool {
	return w.fallback != nil && req.Navigate && req.SameOrigin && w.navigationAllowed(req.URL)
}

// navigationFallback serves the app shell: the precached document, then
// any cached copy, then the network.
func (w *Worker) navigationFallback(ctx context.Context, sreq *strategy.Request) (*Response, error) {
	resp := &Response{Handler: HandlerNavigation}

	if e, err := w.precacher.Lookup(ctx, w.fallback); err == nil {
		resp.Entry, resp.Source, resp.CacheName = e, strategy.SourceCache, w.precacher.CacheName()
		return resp, nil
	}
	key := strategy.CacheKey(w.fallback, nil)
	if e, err := w.store.MatchEntry(ctx, key); err == nil {
		resp.Entry, resp.Source, resp.CacheName = e, strategy.SourceCache, e.CacheName
		return resp, nil
	}

	fr, err := http.NewRequestWithContext(ctx, http.MethodGet, w.fallback.String(), nil)
	if err != nil {
		return resp, err
	}
	fr.Header = sreq.HTTP.Header.Clone()
	// Validators sent for the navigated URL do not describe the shell.
	network.StripConditionalHeaders(fr.Header)
	e, err := w.fetcher.Fetch(ctx, fr)
	if err != nil {
		return resp, err
	}
	resp.Entry, resp.Source = e, strategy.SourceNetwork
	return resp, nil
}

// passthrough answers from any cache holding the exact key, else from the
// network. Nothing is stored.
func (w *Worker) passthrough(ctx context.Context, sreq *strategy.Request) (*Response, error) {
	resp := &Response{Handler: HandlerPassthrough}
	if sreq.HTTP.Method == http.MethodGet {
		e, err := w.store.MatchEntry(ctx, sreq.Key)
		switch {
		case err == nil:
			resp.Entry, resp.Source, resp.CacheName = e, strategy.SourceCache, e.CacheName
			return resp, nil
		case !errors.Is(err, store.ErrNotFound):
			w.logger.Warn("passthrough cache read failed", "key", sreq.Key, "error", err)
		}
	}

	e, err := w.fetcher.Fetch(ctx, sreq.HTTP)
	if err != nil {
		return resp, err
	}
	resp.Entry, resp.Source = e, strategy.SourceNetwork
	return resp, nil
}

func (w *Worker) observe(ctx context.Context, r *http.Request, req *routing.Request, resp *Response, err error, d time.Duration) {
	ev := &audit.Event{
		Kind:       audit.KindDispatch,
		RequestID:  RequestIDFrom(ctx),
		Method:     r.Method,
		URL:        req.URL.String(),
		DurationMs: d.Milliseconds(),
	}
	label := "passthrough"
	if resp != nil {
		ev.RouteID = resp.RouteID
		ev.Strategy = resp.Strategy
		ev.CacheName = resp.CacheName
		ev.Source = string(resp.Source)
		if resp.Strategy != "" {
			label = resp.Strategy
		} else {
			label = string(resp.Handler)
		}
		if resp.Entry != nil {
			ev.Status = resp.Entry.Status
		}
	}
	source := ev.Source
	if err != nil {
		ev.Error = err.Error()
		source = "error"
		var ne *network.NetworkError
		if errors.As(err, &ne) {
			w.metrics.NetworkError(ne.Timeout)
		}
	}
	w.metrics.ObserveDispatch(ev.RouteID, label, source, d)
	w.events.Record(ctx, ev)
}
