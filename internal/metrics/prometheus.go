package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

// Metrics contains all Prometheus metrics for the relay service
type Metrics struct {
	// Telemetry channel metrics
	Telemetry       *prometheus.GaugeVec
	TelemetryWrites *prometheus.CounterVec

	// Event and command metrics
	Events   *prometheus.CounterVec
	Commands *prometheus.CounterVec

	// Downlink monitor metrics
	DownlinkPackets *prometheus.CounterVec
	DownlinkBytes   prometheus.Counter
	DownlinkLevel   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
	EventClients        prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Telemetry channel metrics
		Telemetry: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_telemetry_value",
			Help: "Latest value written to each telemetry channel",
		}, []string{"channel"}),
		TelemetryWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_telemetry_writes_total",
			Help: "Total number of writes to each telemetry channel",
		}, []string{"channel"}),

		// Event and command metrics
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Total number of log events by event and severity",
		}, []string{"event", "severity"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_total",
			Help: "Total number of commands by opcode and response",
		}, []string{"opcode", "response"}),

		// Downlink monitor metrics
		DownlinkPackets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_downlink_packets_total",
			Help: "Total number of framed packets received by the monitor, by result",
		}, []string{"result"}),
		DownlinkBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_downlink_bytes_total",
			Help: "Total number of bytes received by the monitor",
		}),
		DownlinkLevel: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_downlink_audio_level",
			Help:    "RMS level (0-255) of received audio payloads",
			Buckets: prometheus.LinearBuckets(0, 32, 9), // 0 to 256
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Time spent processing HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		EventClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_event_stream_clients",
			Help: "Current number of connected event stream clients",
		}),
	}
}

// WriteTelemetry implements telemetry.Sink
func (m *Metrics) WriteTelemetry(ch telemetry.Channel, value float64) {
	m.Telemetry.WithLabelValues(string(ch)).Set(value)
	m.TelemetryWrites.WithLabelValues(string(ch)).Inc()
}

// LogEvent implements telemetry.EventSink
func (m *Metrics) LogEvent(ev telemetry.Event) {
	m.Events.WithLabelValues(ev.ID.String(), ev.Severity().String()).Inc()
}

// CommandResponse implements telemetry.CommandResponder
func (m *Metrics) CommandResponse(opcode string, token uint32, resp telemetry.Response) {
	m.Commands.WithLabelValues(opcode, resp.String()).Inc()
}

// RecordDownlinkPacket records one packet seen by the downlink monitor
func (m *Metrics) RecordDownlinkPacket(result string, bytes int) {
	m.DownlinkPackets.WithLabelValues(result).Inc()
	m.DownlinkBytes.Add(float64(bytes))
}

// RecordDownlinkLevel records the audio level of a received payload
func (m *Metrics) RecordDownlinkLevel(level uint8) {
	m.DownlinkLevel.Observe(float64(level))
}

// SetEventClients sets the number of connected event stream clients
func (m *Metrics) SetEventClients(count int) {
	m.EventClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
