package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Sink receives telemetry channel updates
type Sink interface {
	WriteTelemetry(ch Channel, value float64)
}

// EventSink receives log events
type EventSink interface {
	LogEvent(ev Event)
}

// CommandResponder receives the response matching a dispatched command
type CommandResponder interface {
	CommandResponse(opcode string, token uint32, resp Response)
}

// Event is a single log event with optional arguments
type Event struct {
	ID    EventID
	Time  time.Time
	Attrs []slog.Attr
}

// NewEvent builds an event stamped with the given time
func NewEvent(id EventID, at time.Time, attrs ...slog.Attr) Event {
	return Event{ID: id, Time: at, Attrs: attrs}
}

// Severity returns the catalogued severity of the event
func (e Event) Severity() Severity {
	return e.ID.Severity()
}

// MarshalJSON renders the event for WebSocket and HTTP clients
func (e Event) MarshalJSON() ([]byte, error) {
	args := make(map[string]interface{}, len(e.Attrs))
	for _, a := range e.Attrs {
		args[a.Key] = a.Value.Any()
	}
	return json.Marshal(struct {
		ID       string                 `json:"id"`
		Severity string                 `json:"severity"`
		Time     time.Time              `json:"time"`
		Args     map[string]interface{} `json:"args,omitempty"`
	}{
		ID:       e.ID.String(),
		Severity: e.Severity().String(),
		Time:     e.Time,
		Args:     args,
	})
}

// LogSink writes events to a structured logger
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates an event sink backed by logger
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// LogEvent implements EventSink
func (l *LogSink) LogEvent(ev Event) {
	attrs := make([]slog.Attr, 0, len(ev.Attrs)+1)
	attrs = append(attrs, slog.String("severity", ev.Severity().String()))
	for _, a := range ev.Attrs {
		if reservedKey(a.Key) {
			a.Key = "event_" + a.Key
		}
		attrs = append(attrs, a)
	}
	l.logger.LogAttrs(context.Background(), severityLevel(ev.Severity()), ev.ID.String(), attrs...)
}

// CommandResponse implements CommandResponder
func (l *LogSink) CommandResponse(opcode string, token uint32, resp Response) {
	level := slog.LevelInfo
	if resp != ResponseOK {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(context.Background(), level, "Command completed",
		slog.String("opcode", opcode),
		slog.Uint64("token", uint64(token)),
		slog.String("response", resp.String()),
	)
}

// reservedKey reports whether key collides with a built-in handler key
func reservedKey(key string) bool {
	switch key {
	case slog.TimeKey, slog.LevelKey, slog.MessageKey, slog.SourceKey:
		return true
	}
	return false
}

func severityLevel(s Severity) slog.Level {
	switch s {
	case SeverityWarningHi, SeverityWarningLo:
		return slog.LevelWarn
	case SeverityActivityHi, SeverityActivityLo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Sample is one telemetry write as seen by a Recorder
type Sample struct {
	Channel Channel   `json:"channel"`
	Value   float64   `json:"value"`
	Time    time.Time `json:"time"`
}

// Recorder keeps the latest value of every channel and a bounded event history.
// It is safe for concurrent use.
type Recorder struct {
	mu          sync.RWMutex
	latest      map[Channel]Sample
	writes      uint64
	writeCounts map[Channel]uint64
	events      []Event
	eventCounts map[EventID]uint64
	maxEvents   int
	now         func() time.Time
}

// NewRecorder creates a recorder retaining at most maxEvents events
func NewRecorder(maxEvents int) *Recorder {
	if maxEvents <= 0 {
		maxEvents = 256
	}
	return &Recorder{
		latest:      make(map[Channel]Sample),
		writeCounts: make(map[Channel]uint64),
		eventCounts: make(map[EventID]uint64),
		maxEvents:   maxEvents,
		now:         time.Now,
	}
}

// WriteTelemetry implements Sink
func (r *Recorder) WriteTelemetry(ch Channel, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest[ch] = Sample{Channel: ch, Value: value, Time: r.now()}
	r.writes++
	r.writeCounts[ch]++
}

// LogEvent implements EventSink
func (r *Recorder) LogEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.eventCounts[ev.ID]++
	r.events = append(r.events, ev)
	if len(r.events) > r.maxEvents {
		r.events = append(r.events[:0:0], r.events[len(r.events)-r.maxEvents:]...)
	}
}

// Value returns the latest value written to ch
func (r *Recorder) Value(ch Channel) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.latest[ch]
	return s.Value, ok
}

// Snapshot returns the latest sample of every written channel
func (r *Recorder) Snapshot() map[Channel]Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Channel]Sample, len(r.latest))
	for ch, s := range r.latest {
		out[ch] = s
	}
	return out
}

// WriteCount returns the total number of telemetry writes
func (r *Recorder) WriteCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// ChannelWriteCount returns the number of writes to ch
func (r *Recorder) ChannelWriteCount(ch Channel) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writeCounts[ch]
}

// EventCount returns how many times id was logged
func (r *Recorder) EventCount(id EventID) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventCounts[id]
}

// TotalEvents returns the number of events logged
func (r *Recorder) TotalEvents() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total uint64
	for _, n := range r.eventCounts {
		total += n
	}
	return total
}

// Events returns the retained event history, oldest first
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

type multiSink []Sink

func (m multiSink) WriteTelemetry(ch Channel, value float64) {
	for _, s := range m {
		s.WriteTelemetry(ch, value)
	}
}

// MultiSink fans telemetry writes out to every sink in order
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiEventSink []EventSink

func (m multiEventSink) LogEvent(ev Event) {
	for _, s := range m {
		s.LogEvent(ev)
	}
}

// MultiEventSink fans events out to every sink in order
func MultiEventSink(sinks ...EventSink) EventSink {
	return multiEventSink(sinks)
}

type multiResponder []CommandResponder

func (m multiResponder) CommandResponse(opcode string, token uint32, resp Response) {
	for _, r := range m {
		r.CommandResponse(opcode, token, resp)
	}
}

// MultiResponder fans command responses out to every responder in order
func MultiResponder(responders ...CommandResponder) CommandResponder {
	return multiResponder(responders)
}
