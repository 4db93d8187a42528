package events

import (
	"context"
	"log/slog"
	"sync"
)

// LogSink writes events to the structured log. It is used when no broker is
// configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, e Event) {
	s.log.InfoContext(ctx, "event",
		slog.String("type", string(e.Type)),
		slog.String("appointment_id", e.AppointmentID),
		slog.String("employee_id", e.EmployeeID),
		slog.String("client_id", e.ClientID),
		slog.String("from", string(e.From)),
		slog.String("to", string(e.To)),
		slog.String("reason", string(e.Reason)),
	)
}

type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
