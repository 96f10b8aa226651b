package api

import (
	"net/http"

	"github.com/revittco/swcache/internal/routing"
	"github.com/revittco/swcache/internal/worker"
)

type routeHandler struct {
	worker *worker.Worker
}

type routeResponse struct {
	Position  int    `json:"position"`
	ID        string `json:"id"`
	Method    string `json:"method"`
	Match     string `json:"match"`
	Expr      string `json:"expr"`
	Strategy  string `json:"strategy"`
	CacheName string `json:"cache_name"`
}

func (h *routeHandler) list(w http.ResponseWriter, _ *http.Request) {
	routes := h.worker.Registry().Routes()
	out := make([]routeResponse, 0, len(routes))
	for i, rt := range routes {
		method := rt.Method
		if method == "" {
			method = http.MethodGet
		}
		out = append(out, routeResponse{
			Position:  i,
			ID:        rt.ID,
			Method:    method,
			Match:     string(rt.Matcher.Kind()),
			Expr:      rt.Matcher.Expr(),
			Strategy:  string(rt.Handler.Kind()),
			CacheName: rt.Handler.CacheName(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// routeByID is used by dry-run to describe the matched rule.
func routeByID(reg *routing.Registry, id string) *routing.Route {
	for _, rt := range reg.Routes() {
		if rt.ID == id {
			return rt
		}
	}
	return nil
}
