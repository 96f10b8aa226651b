package api

import (
	"net/http"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/cache"
	"github.com/revittco/swcache/internal/worker"
)

type statsHandler struct {
	worker *worker.Worker
	bus    *audit.Bus
}

type statsResponse struct {
	Activated       bool           `json:"activated"`
	Routes          int            `json:"routes"`
	RouteResolution cache.Stats    `json:"route_resolution"`
	PrecacheEntries int            `json:"precache_entries"`
	Subscribers     int            `json:"event_subscribers"`
	Recent          []*audit.Event `json:"recent_events"`
}

func (h *statsHandler) get(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		Activated:       h.worker.Activated(),
		Routes:          h.worker.Registry().Len(),
		RouteResolution: h.worker.Registry().MemoStats(),
		PrecacheEntries: len(h.worker.Precacher().Entries()),
		Recent:          []*audit.Event{},
	}
	if h.bus != nil {
		resp.Subscribers = h.bus.Subscribers()
		resp.Recent = h.bus.Recent(20)
	}
	writeJSON(w, http.StatusOK, resp)
}
