package harness

import (
	"context"
	"log/slog"
	"sync"
)

// TraceEvent is one recorded structured log event.
type TraceEvent struct {
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Stage returns the event's stage attribute, if any.
func (e TraceEvent) Stage() string { return e.Attrs["stage"] }

// Matches reports whether the event carries the given stage (empty
// matches any) and contains every attribute in attrs.
func (e TraceEvent) Matches(stage string, attrs map[string]string) bool {
	if stage != "" && e.Stage() != stage {
		return false
	}
	for k, v := range attrs {
		if e.Attrs[k] != v {
			return false
		}
	}
	return true
}

// Recorder is a slog.Handler that captures every event as a
// TraceEvent. It is the harness's log sink: components log through it
// and scenarios assert on what they emitted.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) record(rec slog.Record, bound []slog.Attr) {
	ev := TraceEvent{
		Level:   rec.Level.String(),
		Message: rec.Message,
		Attrs:   make(map[string]string),
	}
	for _, a := range bound {
		ev.Attrs[a.Key] = a.Value.String()
	}
	rec.Attrs(func(a slog.Attr) bool {
		ev.Attrs[a.Key] = a.Value.String()
		return true
	})
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Enabled implements slog.Handler; the recorder captures all levels.
func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	r.record(rec, nil)
	return nil
}

// WithAttrs implements slog.Handler.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &boundRecorder{rec: r, attrs: attrs}
}

// WithGroup implements slog.Handler. Groups are flattened; the
// components under test do not use them.
func (r *Recorder) WithGroup(string) slog.Handler { return r }

type boundRecorder struct {
	rec   *Recorder
	attrs []slog.Attr
}

func (b *boundRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (b *boundRecorder) Handle(_ context.Context, rec slog.Record) error {
	b.rec.record(rec, b.attrs)
	return nil
}

func (b *boundRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(b.attrs)+len(attrs))
	merged = append(merged, b.attrs...)
	merged = append(merged, attrs...)
	return &boundRecorder{rec: b.rec, attrs: merged}
}

func (b *boundRecorder) WithGroup(string) slog.Handler { return b }
