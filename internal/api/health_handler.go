package api

import (
	"net/http"
	"time"

	"github.com/revittco/swcache/internal/worker"
)

var startTime = time.Now()

type healthHandler struct {
	worker  *worker.Worker
	version string
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	UptimeSeconds   int    `json:"uptime_seconds"`
	Activated       bool   `json:"activated"`
	Routes          int    `json:"routes"`
	PrecacheEntries int    `json:"precache_entries"`
}

func (h *healthHandler) get(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:          "ok",
		Version:         h.version,
		UptimeSeconds:   int(time.Since(startTime).Seconds()),
		Activated:       h.worker.Activated(),
		Routes:          h.worker.Registry().Len(),
		PrecacheEntries: len(h.worker.Precacher().Entries()),
	}
	status := http.StatusOK
	if err := h.worker.Store().Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
