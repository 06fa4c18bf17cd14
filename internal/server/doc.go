// Package server implements the host-facing surfaces of the relay: the HTTP
// API (commands, telemetry, event streaming over WebSocket, metrics and the
// last captured audio block) and the UDP downlink monitor that validates a
// received packet stream.
package server
