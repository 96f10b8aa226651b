package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/revittco/swcache/internal/network"
	"github.com/revittco/swcache/internal/strategy"
	"github.com/revittco/swcache/internal/worker"
)

// Response headers describing how a proxied request was answered.
const (
	HeaderSource  = "X-Swcache-Source"
	HeaderHandler = "X-Swcache-Handler"
	HeaderRoute   = "X-Swcache-Route"
)

type proxyHandler struct {
	worker *worker.Worker
}

func (h *proxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.worker.Dispatch(r.Context(), r)
	if err != nil {
		status := errorStatus(err)
		slog.Warn("dispatch failed",
			"method", r.Method,
			"url", r.URL.String(),
			"status", status,
			"error", err,
		)
		writeError(w, status, http.StatusText(status))
		return
	}

	e := resp.Entry
	hdr := w.Header()
	for k, vs := range e.Header {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	network.StripHopHeaders(hdr)
	hdr.Set("Content-Length", strconv.Itoa(len(e.Body)))
	hdr.Set(HeaderSource, string(resp.Source))
	hdr.Set(HeaderHandler, string(resp.Handler))
	if resp.RouteID != "" {
		hdr.Set(HeaderRoute, resp.RouteID)
	}

	w.WriteHeader(e.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(e.Body); err != nil {
		slog.Debug("write response body", "url", r.URL.String(), "error", err)
	}
}

// errorStatus maps a dispatch failure to the gateway status the client sees.
func errorStatus(err error) int {
	var ne *network.NetworkError
	switch {
	case errors.As(err, &ne) && ne.Timeout:
		return http.StatusGatewayTimeout
	case errors.As(err, &ne):
		return http.StatusBadGateway
	case errors.Is(err, strategy.ErrNoResponse):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
