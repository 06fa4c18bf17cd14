package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRecorderTracksLatestAndCounts(t *testing.T) {
	r := NewRecorder(10)

	r.WriteTelemetry(ChanAudioInputLevel, 12)
	r.WriteTelemetry(ChanAudioInputLevel, 34)
	r.WriteTelemetry(ChanDeviceConnected, Bool(true))

	if got := r.WriteCount(); got != 3 {
		t.Errorf("Expected 3 writes, got %d", got)
	}
	if got := r.ChannelWriteCount(ChanAudioInputLevel); got != 2 {
		t.Errorf("Expected 2 level writes, got %d", got)
	}
	if v, ok := r.Value(ChanAudioInputLevel); !ok || v != 34 {
		t.Errorf("Expected latest level 34, got %v (present=%v)", v, ok)
	}
	if _, ok := r.Value(ChanAprsLatitude); ok {
		t.Error("Expected unwritten channel to be absent")
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Errorf("Expected 2 channels in snapshot, got %d", len(snap))
	}
}

func TestRecorderBoundsEventHistory(t *testing.T) {
	r := NewRecorder(3)
	for i := 0; i < 5; i++ {
		r.LogEvent(NewEvent(EventAudioLevelHigh, time.Unix(int64(i), 0)))
	}

	events := r.Events()
	if len(events) != 3 {
		t.Fatalf("Expected 3 retained events, got %d", len(events))
	}
	if events[0].Time.Unix() != 2 {
		t.Errorf("Expected oldest retained event at t=2, got %d", events[0].Time.Unix())
	}
	if got := r.EventCount(EventAudioLevelHigh); got != 5 {
		t.Errorf("Expected event count 5, got %d", got)
	}
	if got := r.TotalEvents(); got != 5 {
		t.Errorf("Expected 5 total events, got %d", got)
	}
}

func TestLogSinkMapsSeverityToLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewLogSink(logger)

	sink.LogEvent(NewEvent(EventDeviceDisconnected, time.Now()))
	sink.LogEvent(NewEvent(EventAprsPositionUpdate, time.Now(), slog.Float64("latitude", 42.5)))

	out := buf.String()
	if !strings.Contains(out, "level=WARN msg=DEVICE_DISCONNECTED") {
		t.Errorf("Expected warning for device disconnect, got: %s", out)
	}
	if !strings.Contains(out, "level=INFO msg=APRS_POSITION_UPDATE") {
		t.Errorf("Expected info for position update, got: %s", out)
	}
	if !strings.Contains(out, "latitude=42.5") {
		t.Errorf("Expected latitude attribute, got: %s", out)
	}
}

func TestLogSinkJSONKeepsSeverityLevel(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.LogEvent(NewEvent(EventAudioLevelHigh, time.Now(), slog.Int("audio_level", 230)))
	sink.LogEvent(NewEvent(EventAudioLevelHigh, time.Now(), slog.Int("level", 231)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %s", len(lines), buf.String())
	}

	tests := []struct {
		key   string
		value float64
	}{
		{"audio_level", 230},
		{"event_level", 231},
	}

	for i, tt := range tests {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
			t.Fatalf("Expected JSON output, got %v", err)
		}
		if entry["level"] != "WARN" {
			t.Errorf("Expected level WARN, got %v", entry["level"])
		}
		if entry["msg"] != "AUDIO_LEVEL_HIGH" || entry["severity"] != "WARNING_LO" {
			t.Errorf("Unexpected entry %v", entry)
		}
		if entry[tt.key] != tt.value {
			t.Errorf("Expected %s=%v, got %v", tt.key, tt.value, entry[tt.key])
		}
	}
}

func TestEventMarshalJSON(t *testing.T) {
	ev := NewEvent(EventAprsPacketReceived, time.Unix(1000, 0).UTC(), slog.String("callsign", "AMSAT-11"))

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got: %v", err)
	}
	if decoded["id"] != "APRS_PACKET_RECEIVED" {
		t.Errorf("Expected id APRS_PACKET_RECEIVED, got %v", decoded["id"])
	}
	if decoded["severity"] != "ACTIVITY_HI" {
		t.Errorf("Expected severity ACTIVITY_HI, got %v", decoded["severity"])
	}
	args, _ := decoded["args"].(map[string]interface{})
	if args["callsign"] != "AMSAT-11" {
		t.Errorf("Expected callsign arg, got %v", args)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := NewRecorder(1), NewRecorder(1)

	MultiSink(a, b).WriteTelemetry(ChanFramesProcessed, 1)
	MultiEventSink(a, b).LogEvent(NewEvent(EventCaptureStarted, time.Now()))

	for i, r := range []*Recorder{a, b} {
		if r.WriteCount() != 1 || r.EventCount(EventCaptureStarted) != 1 {
			t.Errorf("Recorder %d did not receive both updates", i)
		}
	}
}

func TestUnknownIdentifiers(t *testing.T) {
	if got := EventID(999).String(); got != "Unknown(999)" {
		t.Errorf("Expected Unknown(999), got %s", got)
	}
	if got := EventID(999).Severity(); got != SeverityDiagnostic {
		t.Errorf("Expected diagnostic severity for unknown event, got %s", got)
	}
	if got := ResponseExecutionError.String(); got != "EXECUTION_ERROR" {
		t.Errorf("Expected EXECUTION_ERROR, got %s", got)
	}
}

type responseLog struct {
	calls []string
}

func (r *responseLog) CommandResponse(opcode string, token uint32, resp Response) {
	r.calls = append(r.calls, opcode+":"+resp.String())
}

func TestCommandResponses(t *testing.T) {
	var buf bytes.Buffer
	logSink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	a, b := &responseLog{}, &responseLog{}

	responder := MultiResponder(logSink, a, b)
	responder.CommandResponse("STOP_CAPTURE", 9, ResponseExecutionError)

	if len(a.calls) != 1 || len(b.calls) != 1 {
		t.Fatalf("Expected each responder called once, got %d and %d", len(a.calls), len(b.calls))
	}
	if a.calls[0] != "STOP_CAPTURE:EXECUTION_ERROR" {
		t.Errorf("Unexpected response %q", a.calls[0])
	}

	out := buf.String()
	for _, want := range []string{"level=WARN", "opcode=STOP_CAPTURE", "token=9", "response=EXECUTION_ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log to contain %q, got: %s", want, out)
		}
	}
}
