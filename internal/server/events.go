package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

// MessageType classifies a message pushed to event stream clients
type MessageType string

const (
	MessageEvent     MessageType = "event"
	MessageTelemetry MessageType = "telemetry"
)

// Message is the envelope written to WebSocket clients
type Message struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	ch chan Message
}

// EventHub fans events and telemetry out to WebSocket clients. Clients that
// fall behind lose messages instead of stalling the rate group.
type EventHub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	buffer   int
	onChange func(clients int)
	now      func() time.Time
}

// NewEventHub creates a hub with a per-client buffer of size buffer
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventHub{
		subs:   make(map[*subscriber]struct{}),
		buffer: buffer,
		now:    time.Now,
	}
}

// OnClientsChanged registers a callback invoked with the client count
func (h *EventHub) OnClientsChanged(fn func(clients int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// Subscribe registers a client. The returned function unregisters it and
// closes the channel.
func (h *EventHub) Subscribe() (<-chan Message, func()) {
	s := &subscriber{ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n, cb := len(h.subs), h.onChange
	h.mu.Unlock()
	if cb != nil {
		cb(n)
	}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			n, cb := len(h.subs), h.onChange
			close(s.ch)
			h.mu.Unlock()
			if cb != nil {
				cb(n)
			}
		})
	}
	return s.ch, unsub
}

// Len returns the number of connected clients
func (h *EventHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// LogEvent implements telemetry.EventSink
func (h *EventHub) LogEvent(ev telemetry.Event) {
	h.publish(Message{Type: MessageEvent, Data: ev})
}

// WriteTelemetry implements telemetry.Sink
func (h *EventHub) WriteTelemetry(ch telemetry.Channel, value float64) {
	h.publish(Message{
		Type: MessageTelemetry,
		Data: telemetry.Sample{Channel: ch, Value: value, Time: h.now()},
	})
}

func (h *EventHub) publish(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		select {
		case s.ch <- m:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

const (
	pingInterval = 20 * time.Second
	writeTimeout = 5 * time.Second
)

// ServeWS upgrades the request and streams hub messages until the client
// disconnects
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch, unsub := h.Subscribe()
	defer unsub()

	logger.Info("Event stream client connected", slog.String("remote_addr", r.RemoteAddr))

	// Drain client frames so close and pong control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("Event stream write failed", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			logger.Info("Event stream client disconnected", slog.String("remote_addr", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		}
	}
}
