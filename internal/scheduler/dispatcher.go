package scheduler

import (
	"log/slog"
	"sort"

	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

// Handler executes one command
type Handler func() telemetry.Response

// Dispatcher maps opcodes to handlers
type Dispatcher struct {
	handlers  map[string]Handler
	responder telemetry.CommandResponder
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher reporting responses to responder
func NewDispatcher(responder telemetry.CommandResponder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers:  make(map[string]Handler),
		responder: responder,
		logger:    logger.With(slog.String("component", "dispatcher")),
	}
}

// Register binds opcode to h, replacing any previous handler
func (d *Dispatcher) Register(opcode string, h Handler) {
	d.handlers[opcode] = h
}

// Opcodes returns the registered opcodes in sorted order
func (d *Dispatcher) Opcodes() []string {
	out := make([]string, 0, len(d.handlers))
	for op := range d.handlers {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Has reports whether opcode is registered
func (d *Dispatcher) Has(opcode string) bool {
	_, ok := d.handlers[opcode]
	return ok
}

// Dispatch runs the handler for opcode and reports the response
func (d *Dispatcher) Dispatch(opcode string, token uint32) telemetry.Response {
	resp := telemetry.ResponseInvalidOpcode
	if h, ok := d.handlers[opcode]; ok {
		resp = h()
	} else {
		d.logger.Warn("Unknown opcode", slog.String("opcode", opcode))
	}

	if d.responder != nil {
		d.responder.CommandResponse(opcode, token, resp)
	}
	return resp
}
