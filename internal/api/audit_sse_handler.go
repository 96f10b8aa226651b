package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/revittco/swcache/internal/audit"
)

type auditSSEHandler struct {
	bus *audit.Bus
}

func (h *auditSSEHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Read optional filters from query params.
	qKind := r.URL.Query().Get("kind")
	qRoute := r.URL.Query().Get("route_id")
	qSource := r.URL.Query().Get("source")

	// Subscribe before the headers go out so a client that has seen the
	// response cannot miss the next event.
	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !matchFilter(string(ev.Kind), qKind) ||
				!matchFilter(ev.RouteID, qRoute) ||
				!matchFilter(ev.Source, qSource) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ":\n\n")
			flusher.Flush()
		}
	}
}

// matchFilter returns true if the filter is empty or matches the value.
func matchFilter(value, filter string) bool {
	return filter == "" || value == filter
}
