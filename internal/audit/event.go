package audit

import "time"

// EventKind classifies an Event.
type EventKind string

const (
	KindDispatch EventKind = "dispatch"
	KindInstall  EventKind = "install"
	KindActivate EventKind = "activate"
	KindPurge    EventKind = "purge"
)

// Event is one worker decision: a dispatched request or a lifecycle step.
type Event struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Kind       EventKind `json:"kind"`
	RequestID  string    `json:"request_id,omitempty"`
	Method     string    `json:"method,omitempty"`
	URL        string    `json:"url,omitempty"`
	RouteID    string    `json:"route_id,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	CacheName  string    `json:"cache_name,omitempty"`
	Source     string    `json:"source,omitempty"`
	Status     int       `json:"status,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Count      int       `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
}
