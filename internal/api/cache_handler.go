package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/revittco/swcache/internal/audit"
	"github.com/revittco/swcache/internal/store"
)

type cacheHandler struct {
	store  store.Store
	events *audit.Logger
}

func (h *cacheHandler) list(w http.ResponseWriter, r *http.Request) {
	caches, err := h.store.ListCaches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if caches == nil {
		caches = []store.CacheInfo{}
	}
	writeJSON(w, http.StatusOK, caches)
}

func (h *cacheHandler) entries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListEntries(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.EntryInfo{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *cacheHandler) deleteCache(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	start := time.Now()
	n, err := h.store.DeleteCache(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "cache not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.events.Record(r.Context(), &audit.Event{
		Kind:       audit.KindPurge,
		CacheName:  name,
		Count:      n,
		DurationMs: time.Since(start).Milliseconds(),
	})
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *cacheHandler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key query parameter is required")
		return
	}
	err := h.store.DeleteEntry(r.Context(), name, key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.events.Record(r.Context(), &audit.Event{
		Kind:      audit.KindPurge,
		CacheName: name,
		URL:       key,
		Count:     1,
	})
	w.WriteHeader(http.StatusNoContent)
}
