package telemetry

import "fmt"

// Channel identifies a telemetry channel
type Channel string

// Telemetry channels written by the capture manager
const (
	ChanDeviceConnected      Channel = "DEVICE_CONNECTED"
	ChanTransmissionActive   Channel = "TRANSMISSION_ACTIVE"
	ChanAudioInputLevel      Channel = "AUDIO_INPUT_LEVEL"
	ChanFramesProcessed      Channel = "FRAMES_PROCESSED"
	ChanPacketsTransmitted   Channel = "PACKETS_TRANSMITTED"
	ChanLastTransmissionTime Channel = "LAST_TRANSMISSION_TIME"
)

// Telemetry channels written by the APRS ingestion server
const (
	ChanAprsLatitude       Channel = "APRS_LATITUDE"
	ChanAprsLongitude      Channel = "APRS_LONGITUDE"
	ChanAprsBatteryVoltage Channel = "APRS_BATTERY_VOLTAGE"
	ChanAprsTemperature    Channel = "APRS_TEMPERATURE"
	ChanAprsSignalStrength Channel = "APRS_SIGNAL_STRENGTH"
	ChanAprsPacketCount    Channel = "APRS_PACKET_COUNT"
)

// Channels lists every known telemetry channel in catalogue order
var Channels = []Channel{
	ChanDeviceConnected,
	ChanTransmissionActive,
	ChanAudioInputLevel,
	ChanFramesProcessed,
	ChanPacketsTransmitted,
	ChanLastTransmissionTime,
	ChanAprsLatitude,
	ChanAprsLongitude,
	ChanAprsBatteryVoltage,
	ChanAprsTemperature,
	ChanAprsSignalStrength,
	ChanAprsPacketCount,
}

// Bool converts a flag to its telemetry value
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Severity classifies a log event
type Severity uint8

const (
	SeverityDiagnostic Severity = iota
	SeverityActivityLo
	SeverityActivityHi
	SeverityWarningLo
	SeverityWarningHi
)

func (s Severity) String() string {
	switch s {
	case SeverityDiagnostic:
		return "DIAGNOSTIC"
	case SeverityActivityLo:
		return "ACTIVITY_LO"
	case SeverityActivityHi:
		return "ACTIVITY_HI"
	case SeverityWarningLo:
		return "WARNING_LO"
	case SeverityWarningHi:
		return "WARNING_HI"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// EventID identifies a log event
type EventID uint16

const (
	EventCaptureStarted EventID = iota + 1
	EventCaptureStopped
	EventCaptureAlreadyStarted
	EventDeviceDisconnected
	EventTransmissionStarted
	EventTransmissionStopped
	EventTransmissionAlreadyStarted
	EventTransmissionAlreadyStopped
	EventTransmissionError
	EventTestPacketSent
	EventAudioLevelHigh
	EventAprsPacketReceived
	EventAprsPositionUpdate
	EventAprsTelemetryUpdate
	EventAprsParseError
)

type eventDef struct {
	name     string
	severity Severity
}

var eventDefs = map[EventID]eventDef{
	EventCaptureStarted:             {"AUDIO_CAPTURE_STARTED", SeverityActivityLo},
	EventCaptureStopped:             {"AUDIO_CAPTURE_STOPPED", SeverityActivityLo},
	EventCaptureAlreadyStarted:      {"AUDIO_CAPTURE_ALREADY_STARTED", SeverityWarningHi},
	EventDeviceDisconnected:         {"DEVICE_DISCONNECTED", SeverityWarningHi},
	EventTransmissionStarted:        {"TRANSMISSION_STARTED", SeverityActivityLo},
	EventTransmissionStopped:        {"TRANSMISSION_STOPPED", SeverityActivityLo},
	EventTransmissionAlreadyStarted: {"TRANSMISSION_ALREADY_STARTED", SeverityWarningLo},
	EventTransmissionAlreadyStopped: {"TRANSMISSION_ALREADY_STOPPED", SeverityWarningLo},
	EventTransmissionError:          {"TRANSMISSION_ERROR", SeverityWarningLo},
	EventTestPacketSent:             {"TEST_PACKET_SENT", SeverityActivityLo},
	EventAudioLevelHigh:             {"AUDIO_LEVEL_HIGH", SeverityWarningLo},
	EventAprsPacketReceived:         {"APRS_PACKET_RECEIVED", SeverityActivityHi},
	EventAprsPositionUpdate:         {"APRS_POSITION_UPDATE", SeverityActivityLo},
	EventAprsTelemetryUpdate:        {"APRS_TELEMETRY_UPDATE", SeverityActivityLo},
	EventAprsParseError:             {"APRS_PARSE_ERROR", SeverityWarningLo},
}

func (id EventID) String() string {
	if def, ok := eventDefs[id]; ok {
		return def.name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(id))
}

// Severity returns the catalogued severity of the event
func (id EventID) Severity() Severity {
	if def, ok := eventDefs[id]; ok {
		return def.severity
	}
	return SeverityDiagnostic
}

// Response is the outcome of a command
type Response uint8

const (
	ResponseOK Response = iota
	ResponseExecutionError
	ResponseInvalidOpcode
)

func (r Response) String() string {
	switch r {
	case ResponseOK:
		return "OK"
	case ResponseExecutionError:
		return "EXECUTION_ERROR"
	case ResponseInvalidOpcode:
		return "INVALID_OPCODE"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(r))
	}
}

// MarshalText renders the response by name in JSON payloads
func (r Response) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
