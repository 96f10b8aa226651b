package api

import (
	"net/http"
	"strings"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/metrics"
	"github.com/revittco/swcache/internal/worker"
)

// AdminPrefix is the path prefix reserved for the admin surface. Everything
// else is dispatched through the worker.
const AdminPrefix = "/_swcache/"

// RouterDeps holds the dependencies needed by the HTTP router.
type RouterDeps struct {
	Worker   *worker.Worker
	Metrics  *metrics.Metrics // optional; enables /_swcache/metrics
	AuditBus *audit.Bus       // optional; enables the SSE event stream
	Events   *audit.Logger    // optional; records purges
	Version  string
}

// NewRouter creates the root http.Handler: the admin API under AdminPrefix
// and the caching proxy for every other request.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	health := &healthHandler{worker: deps.Worker, version: deps.Version}
	mux.HandleFunc("GET /_swcache/api/v1/health", health.get)

	rt := &routeHandler{worker: deps.Worker}
	mux.HandleFunc("GET /_swcache/api/v1/routes", rt.list)

	dr := &dryRunHandler{worker: deps.Worker}
	mux.HandleFunc("POST /_swcache/api/v1/dry-run", dr.run)

	ch := &cacheHandler{store: deps.Worker.Store(), events: deps.Events}
	mux.HandleFunc("GET /_swcache/api/v1/caches", ch.list)
	mux.HandleFunc("GET /_swcache/api/v1/caches/{name}/entries", ch.entries)
	mux.HandleFunc("DELETE /_swcache/api/v1/caches/{name}", ch.deleteCache)
	mux.HandleFunc("DELETE /_swcache/api/v1/caches/{name}/entries", ch.deleteEntry)

	pc := &precacheHandler{worker: deps.Worker}
	mux.HandleFunc("GET /_swcache/api/v1/precache", pc.list)
	mux.HandleFunc("POST /_swcache/api/v1/precache/install", pc.install)

	st := &statsHandler{worker: deps.Worker, bus: deps.AuditBus}
	mux.HandleFunc("GET /_swcache/api/v1/stats", st.get)

	if deps.AuditBus != nil {
		ev := &auditHandler{bus: deps.AuditBus}
		mux.HandleFunc("GET /_swcache/api/v1/events/recent", ev.recent)
		sse := &auditSSEHandler{bus: deps.AuditBus}
		mux.HandleFunc("GET /_swcache/api/v1/events", sse.stream)
	}

	if deps.Metrics != nil {
		mux.Handle("GET /_swcache/metrics", deps.Metrics.Handler())
	}

	// Admin middleware chain: CORS -> security headers -> origin check -> JSON -> mux
	var admin http.Handler = mux
	admin = requireJSONContentTypeMiddleware(admin)
	admin = browserOriginProtectionMiddleware(admin)
	admin = securityHeadersMiddleware(admin)
	admin = corsMiddleware(admin)

	proxy := &proxyHandler{worker: deps.Worker}

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAdmin(r) {
			admin.ServeHTTP(w, r)
			return
		}
		proxy.ServeHTTP(w, r)
	})
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return handler
}

// isAdmin reports whether r addresses the admin surface. Absolute-form
// request URIs are proxy traffic even when their path looks like ours.
func isAdmin(r *http.Request) bool {
	return !r.URL.IsAbs() && strings.HasPrefix(r.URL.Path, AdminPrefix)
}
