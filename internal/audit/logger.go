package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Logger redacts, logs and publishes worker events.
type Logger struct {
	log   *slog.Logger
	bus   *Bus
	hints []string
	now   func() time.Time
}

// NewLogger creates an event Logger. bus may be nil. hints are extra query
// parameter substrings to redact.
func NewLogger(log *slog.Logger, bus *Bus, hints ...string) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log, bus: bus, hints: hints, now: time.Now}
}

// Record fills in the ID and time, redacts the URL and emits the event.
// A nil Logger drops events.
func (l *Logger) Record(ctx context.Context, ev *Event) {
	if l == nil || ev == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = l.now().UTC()
	}
	if ev.URL != "" {
		ev.URL = RedactURL(ev.URL, l.hints)
	}

	level := slog.LevelDebug
	if ev.Error != "" {
		level = slog.LevelWarn
	} else if ev.Kind != KindDispatch {
		level = slog.LevelInfo
	}
	l.log.LogAttrs(ctx, level, string(ev.Kind),
		slog.String("request_id", ev.RequestID),
		slog.String("method", ev.Method),
		slog.String("url", ev.URL),
		slog.String("route", ev.RouteID),
		slog.String("strategy", ev.Strategy),
		slog.String("cache", ev.CacheName),
		slog.String("source", ev.Source),
		slog.Int("status", ev.Status),
		slog.Int64("duration_ms", ev.DurationMs),
		slog.String("error", ev.Error),
	)

	if l.bus != nil {
		l.bus.Publish(ev)
	}
}
