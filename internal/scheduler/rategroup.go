package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

// ErrStopped is returned by Submit once the rate group has exited
var ErrStopped = errors.New("rate group stopped")

// Tickable is a component driven once per cycle
type Tickable interface {
	Tick()
}

// TickFunc adapts a function to Tickable
type TickFunc func()

// Tick implements Tickable
func (f TickFunc) Tick() { f() }

// Result is the outcome of a submitted command
type Result struct {
	Opcode   string             `json:"opcode"`
	Token    uint32             `json:"token"`
	Response telemetry.Response `json:"response"`
}

// Stats is a snapshot of rate group counters
type Stats struct {
	Cycles   uint64 `json:"cycles"`
	Overruns uint64 `json:"overruns"`
	Commands uint64 `json:"commands"`
	Running  bool   `json:"running"`
}

type member struct {
	name string
	t    Tickable
}

type request struct {
	opcode string
	token  uint32
	fn     func()
	reply  chan Result
}

// RateGroup ticks its members at a fixed interval on one goroutine
type RateGroup struct {
	interval   time.Duration
	members    []member
	dispatcher *Dispatcher
	requests   chan request
	done       chan struct{}
	logger     *slog.Logger

	token    atomic.Uint32
	cycles   atomic.Uint64
	overruns atomic.Uint64
	commands atomic.Uint64
	running  atomic.Bool
}

// NewRateGroup creates a rate group. Members must be registered before Run.
func NewRateGroup(interval time.Duration, dispatcher *Dispatcher, logger *slog.Logger) *RateGroup {
	return &RateGroup{
		interval:   interval,
		dispatcher: dispatcher,
		requests:   make(chan request, 16),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "rategroup")),
	}
}

// Register appends a member; members tick in registration order
func (g *RateGroup) Register(name string, t Tickable) {
	g.members = append(g.members, member{name: name, t: t})
}

// Members returns member names in tick order
func (g *RateGroup) Members() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.name
	}
	return out
}

// Cycle runs every member once
func (g *RateGroup) Cycle() {
	start := time.Now()
	for _, m := range g.members {
		m.t.Tick()
	}
	g.cycles.Add(1)

	if elapsed := time.Since(start); g.interval > 0 && elapsed > g.interval {
		g.overruns.Add(1)
		g.logger.Warn("Rate group cycle overran",
			slog.Duration("elapsed", elapsed),
			slog.Duration("interval", g.interval),
		)
	}
}

// Run drives the rate group until ctx is cancelled
func (g *RateGroup) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.running.Store(true)
	defer func() {
		g.running.Store(false)
		close(g.done)
	}()

	g.logger.Info("Rate group started",
		slog.Duration("interval", g.interval),
		slog.Any("members", g.Members()),
	)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Rate group stopped", slog.Uint64("cycles", g.cycles.Load()))
			return ctx.Err()
		case <-ticker.C:
			g.Cycle()
		case req := <-g.requests:
			g.execute(req)
		}
	}
}

// Submit queues a command for execution on the rate-group goroutine and
// waits for its response
func (g *RateGroup) Submit(ctx context.Context, opcode string) (Result, error) {
	req := request{
		opcode: opcode,
		token:  g.token.Add(1),
		reply:  make(chan Result, 1),
	}
	return g.enqueue(ctx, req)
}

// Do runs fn on the rate-group goroutine between cycles and waits for it to return
func (g *RateGroup) Do(ctx context.Context, fn func()) error {
	_, err := g.enqueue(ctx, request{fn: fn, reply: make(chan Result, 1)})
	return err
}

func (g *RateGroup) enqueue(ctx context.Context, req request) (Result, error) {
	select {
	case g.requests <- req:
	case <-g.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-g.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stats returns the current counters
func (g *RateGroup) Stats() Stats {
	return Stats{
		Cycles:   g.cycles.Load(),
		Overruns: g.overruns.Load(),
		Commands: g.commands.Load(),
		Running:  g.running.Load(),
	}
}

func (g *RateGroup) execute(req request) {
	if req.fn != nil {
		req.fn()
		req.reply <- Result{}
		return
	}

	resp := g.dispatcher.Dispatch(req.opcode, req.token)
	g.commands.Add(1)
	req.reply <- Result{Opcode: req.opcode, Token: req.token, Response: resp}
}
