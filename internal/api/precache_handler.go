package api

import (
	"errors"
	"net/http"

	"github.com/revittco/swcache/internal/precache"
	"github.com/revittco/swcache/internal/worker"
)

type precacheHandler struct {
	worker *worker.Worker
}

type precacheListResponse struct {
	CacheName string           `json:"cache_name"`
	Installed bool             `json:"installed"`
	Entries   []precache.Entry `json:"entries"`
}

func (h *precacheHandler) list(w http.ResponseWriter, _ *http.Request) {
	p := h.worker.Precacher()
	entries := p.Entries()
	if entries == nil {
		entries = []precache.Entry{}
	}
	writeJSON(w, http.StatusOK, precacheListResponse{
		CacheName: p.CacheName(),
		Installed: p.Installed(),
		Entries:   entries,
	})
}

// install fetches missing precache entries and re-activates, removing
// outdated ones.
func (h *precacheHandler) install(w http.ResponseWriter, r *http.Request) {
	res, err := h.worker.Install(r.Context())
	if err != nil {
		var ie *precache.InstallError
		if errors.As(err, &ie) {
			writeErrorDetail(w, http.StatusBadGateway, "precache install failed", err.Error())
			return
		}
		writeErrorDetail(w, http.StatusInternalServerError, "precache install failed", err.Error())
		return
	}
	if err := h.worker.Activate(r.Context()); err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "activate failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
