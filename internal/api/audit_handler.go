package api

import (
	"net/http"
	"strconv"

	"github.com/revittco/swcache/internal/audit"
)

type auditHandler struct {
	bus *audit.Bus
}

func (h *auditHandler) recent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events := h.bus.Recent(limit)
	if events == nil {
		events = []*audit.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
