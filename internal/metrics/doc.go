// Package metrics exports telemetry, events, command outcomes and API
// activity as Prometheus metrics.
package metrics
