package api

import (
	"net/http"
	"strings"

	"github.com/revittco/swcache/internal/worker"
)

type dryRunHandler struct {
	worker *worker.Worker
}

type dryRunRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

type dryRunResponse struct {
	worker.Decision
	Expr string `json:"expr,omitempty"`
}

func (h *dryRunHandler) run(w http.ResponseWriter, r *http.Request) {
	var req dryRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := http.NewRequestWithContext(r.Context(), strings.ToUpper(req.Method), req.URL, nil)
	if err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid url", err.Error())
		return
	}
	for k, v := range req.Headers {
		target.Header.Set(k, v)
	}

	resp := dryRunResponse{Decision: h.worker.Resolve(target)}
	if resp.RouteID != "" {
		if rt := routeByID(h.worker.Registry(), resp.RouteID); rt != nil {
			resp.Expr = rt.Matcher.Expr()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
