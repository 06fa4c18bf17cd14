// Package telemetry defines the telemetry channels, log events and command
// responses produced by the payload components, together with the narrow sink
// interfaces a host supplies to receive them. It also provides an in-memory
// recorder, a slog-backed event sink and fan-out helpers.
package telemetry
