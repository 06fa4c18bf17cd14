package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fprime-community/fprime-amsat-reference/internal/aprs"
	"github.com/fprime-community/fprime-amsat-reference/internal/audio"
	"github.com/fprime-community/fprime-amsat-reference/internal/capture"
	"github.com/fprime-community/fprime-amsat-reference/internal/config"
	"github.com/fprime-community/fprime-amsat-reference/internal/metrics"
	"github.com/fprime-community/fprime-amsat-reference/internal/scheduler"
	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

const (
	serviceName    = "payload-audio-relay"
	requestTimeout = 5 * time.Second
)

// Controller runs work on the rate group that owns the components
type Controller interface {
	Submit(ctx context.Context, opcode string) (scheduler.Result, error)
	Do(ctx context.Context, fn func()) error
	Stats() scheduler.Stats
}

// Deps holds everything the HTTP API reads from or drives
type Deps struct {
	Config   *config.Config
	Group    Controller
	Opcodes  []string
	Capture  *capture.Manager
	APRS     *aprs.Server
	Recorder *telemetry.Recorder
	Hub      *EventHub
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Version  string
}

// HTTPServer provides the command, telemetry and monitoring API
type HTTPServer struct {
	server    *http.Server
	listener  net.Listener
	logger    *slog.Logger
	deps      Deps
	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, deps Deps) *HTTPServer {
	h := &HTTPServer{
		logger:    logger.With(slog.String("component", "http")),
		deps:      deps,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        cfg.GetListenAddress(),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the API handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/telemetry", h.withMetrics("/telemetry", h.handleTelemetry))
	mux.HandleFunc("/events", h.withMetrics("/events", h.handleEvents))
	mux.HandleFunc("/commands", h.withMetrics("/commands", h.handleCommandList))
	mux.HandleFunc("/commands/", h.withMetrics("/commands/{opcode}", h.handleCommand))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/audio/last.wav", h.withMetrics("/audio/last.wav", h.handleLastAudio))

	gatherer := h.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		if h.deps.Metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Start binds the listener and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	h.logger.Info("Starting HTTP API server", slog.String("address", ln.Addr().String()))

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

// componentStatus is collected on the rate group
type componentStatus struct {
	Capturing          bool    `json:"capturing"`
	Transmitting       bool    `json:"transmitting"`
	Device             string  `json:"device,omitempty"`
	SampleRate         float64 `json:"sample_rate"`
	Sequence           uint32  `json:"sequence"`
	FramesProcessed    uint64  `json:"frames_processed"`
	PacketsTransmitted uint64  `json:"packets_transmitted"`
	APRSActive         bool    `json:"aprs_active"`
	APRSAddress        string  `json:"aprs_address,omitempty"`
	APRSPackets        uint64  `json:"aprs_packets"`
}

// collectStatus snapshots the components on the rate group. The snapshot is
// built inside the closure and handed back by value, so a closure that runs
// after Do gave up never touches memory the caller still reads.
func (h *HTTPServer) collectStatus(ctx context.Context) (componentStatus, error) {
	ch := make(chan componentStatus, 1)
	err := h.deps.Group.Do(ctx, func() {
		var st componentStatus
		if m := h.deps.Capture; m != nil {
			st.Capturing = m.Capturing()
			st.Transmitting = m.Transmitting()
			st.Device = m.DeviceName()
			st.SampleRate = m.SampleRate()
			st.Sequence = m.Sequence()
			st.FramesProcessed = m.FramesProcessed()
			st.PacketsTransmitted = m.PacketsTransmitted()
		}
		if s := h.deps.APRS; s != nil {
			st.APRSActive = s.Active()
			st.APRSAddress = s.Addr()
			st.APRSPackets = s.PacketCount()
		}
		ch <- st
	})
	if err != nil {
		return componentStatus{}, err
	}
	return <-ch, nil
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components, err := h.collectStatus(ctx)
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.logger.Warn("Failed to collect component status", slog.String("error", err.Error()))
	}

	clients := 0
	if h.deps.Hub != nil {
		clients = h.deps.Hub.Len()
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": h.deps.Version,
		},
		"scheduler":     h.deps.Group.Stats(),
		"components":    components,
		"event_clients": clients,
	}

	writeJSON(w, code, health)
}

// handleTelemetry implements the /telemetry endpoint
func (h *HTTPServer) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.deps.Recorder.Snapshot()
	samples := make([]telemetry.Sample, 0, len(snapshot))
	for _, ch := range telemetry.Channels {
		if s, ok := snapshot[ch]; ok {
			samples = append(samples, s)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"channels":  samples,
	})
}

// handleEvents streams events over WebSocket, or returns recent history
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		if h.deps.Hub == nil {
			http.Error(w, "Event stream disabled", http.StatusServiceUnavailable)
			return
		}
		h.deps.Hub.ServeWS(w, r, h.logger)
		return
	}

	events := h.deps.Recorder.Events()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(events),
		"events": events,
	})
}

// handleCommandList implements GET /commands
func (h *HTTPServer) handleCommandList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"opcodes": h.deps.Opcodes,
	})
}

// handleCommand implements POST /commands/{opcode}
func (h *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opcode := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/commands/"))
	if opcode == "" {
		http.Error(w, "Opcode required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.deps.Group.Submit(ctx, opcode)
	if err != nil {
		h.logger.Error("Command submission failed",
			slog.String("opcode", opcode),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Command not executed", http.StatusServiceUnavailable)
		return
	}

	code := http.StatusOK
	switch res.Response {
	case telemetry.ResponseExecutionError:
		code = http.StatusConflict
	case telemetry.ResponseInvalidOpcode:
		code = http.StatusNotFound
	}

	writeJSON(w, code, res)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.deps.Config
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capture": map[string]interface{}{
			"devices":         c.Capture.Devices,
			"sample_rate":     c.Capture.SampleRate,
			"channels":        c.Capture.Channels,
			"buffer_samples":  c.Capture.BufferSamples,
			"level_threshold": c.Capture.LevelThreshold,
		},
		"transmission": map[string]interface{}{
			"destination":       c.Transmission.Destination,
			"max_payload_bytes": c.Transmission.MaxPayloadBytes,
		},
		"aprs": map[string]interface{}{
			"enabled":           c.APRS.Enabled,
			"address":           c.APRS.GetAddress(),
			"backlog":           c.APRS.Backlog,
			"max_message_bytes": c.APRS.MaxMessageBytes,
			"tag":               c.APRS.Tag,
		},
		"scheduler": map[string]interface{}{
			"tick_interval": c.Scheduler.GetTickInterval().String(),
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	})
}

// handleLastAudio returns the most recently captured block as WAV
func (h *HTTPServer) handleLastAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Capture == nil {
		http.Error(w, "Capture disabled", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	type block struct {
		samples []int16
		rate    float64
	}
	ch := make(chan block, 1)
	err := h.deps.Group.Do(ctx, func() {
		ch <- block{samples: h.deps.Capture.LastBlock(), rate: h.deps.Capture.SampleRate()}
	})
	if err != nil {
		http.Error(w, "Capture unavailable", http.StatusServiceUnavailable)
		return
	}
	last := <-ch
	samples, rate := last.samples, last.rate
	if len(samples) == 0 {
		http.Error(w, "No audio captured yet", http.StatusNotFound)
		return
	}

	wav, err := audio.EncodeWAV(samples, int(rate))
	if err != nil {
		h.logger.Error("Failed to encode WAV", slog.String("error", err.Error()))
		http.Error(w, "Encoding failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(wav)))
	w.Write(wav)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": h.deps.Version,
		"endpoints": map[string]interface{}{
			"GET /":                   "API documentation",
			"GET /health":             "Service and component health",
			"GET /telemetry":          "Latest value of every telemetry channel",
			"GET /events":             "Recent events, or a live stream over WebSocket",
			"GET /commands":           "Available command opcodes",
			"POST /commands/{opcode}": "Execute a command on the rate group",
			"GET /config":             "Effective configuration",
			"GET /audio/last.wav":     "Most recently captured audio block",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
