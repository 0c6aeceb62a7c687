// Package registry maps live connections to their conversation and booking
// session, and evicts sessions the per-session timers missed.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/dispatch"
	"booking-assistant-backend/internal/platform"
	"booking-assistant-backend/internal/session"
)

// Transport delivers outbound messages to one client.
type Transport interface {
	Send(ctx context.Context, msg dispatch.Message) error
}

// Options wires the registry to the rest of the service.
type Options struct {
	Agent    automation.Agent
	Adapters *platform.Registry
	Loop     *dispatch.Loop

	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	DisconnectGrace time.Duration
	QueueSize       int
	SnapshotDir     string

	// OnOutcome receives booking outcomes from every connection.
	OnOutcome session.OutcomeFunc
	// OnDisconnect runs after a connection's session has been torn down.
	OnDisconnect func(connID string)
}

// Stats are process-wide counters.
type Stats struct {
	Connections      int    `json:"connections"`
	ActiveSessions   int    `json:"activeSessions"`
	TotalConnections uint64 `json:"totalConnections"`
	MessagesHandled  uint64 `json:"messagesHandled"`
	SessionsEvicted  uint64 `json:"sessionsEvicted"`
}

type Registry struct {
	opts   Options
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[string]*Conn

	total   atomic.Uint64
	handled atomic.Uint64
	evicted atomic.Uint64
}

func New(opts Options, logger *zap.Logger) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Minute
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	if opts.OnOutcome == nil {
		opts.OnOutcome = func(session.Outcome) {}
	}
	return &Registry{
		opts:   opts,
		logger: logger.Named("registry"),
		conns:  make(map[string]*Conn),
	}
}

// Connect registers a new connection, sends the greeting and starts
// processing inbound messages. No booking session exists until a function
// call needs one.
func (r *Registry) Connect(ctx context.Context, t Transport) *Conn {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)

	history := dispatch.NewHistory(systemPrompt)
	history.Append(assistantTurn(greeting))

	c := &Conn{
		id:        id,
		r:         r,
		transport: t,
		history:   history,
		queue:     make(chan Inbound, r.opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    r.logger.With(zap.String("conn", id)),
	}
	c.machine = session.NewMachine(id, r.opts.Agent, r.opts.Adapters, session.Config{
		IdleTimeout: r.opts.IdleTimeout,
		SnapshotDir: r.opts.SnapshotDir,
	}, r.opts.OnOutcome, r.logger)

	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()
	r.total.Add(1)

	c.send(dispatch.Message{
		Sender:       dispatch.SenderBot,
		Text:         greeting,
		IsComplete:   true,
		ConnectionID: id,
	})

	go c.work()
	c.logger.Info("client connected")
	return c
}

// Get returns the live connection with id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Run evicts idle sessions every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	timer := time.NewTimer(r.opts.SweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sweeper shutting down")
			return
		case <-timer.C:
			if n := r.Sweep(time.Now()); n > 0 {
				r.logger.Info("swept idle sessions", zap.Int("evicted", n))
			}
			timer.Reset(r.opts.SweepInterval)
		}
	}
}

// Sweep tears down every session idle for longer than the idle timeout and
// returns how many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	n := 0
	for _, c := range r.snapshot() {
		if c.machine.SweepIdle(now, r.opts.IdleTimeout) {
			n++
		}
	}
	r.evicted.Add(uint64(n))
	return n
}

// Shutdown disconnects every connection.
func (r *Registry) Shutdown() {
	var wg sync.WaitGroup
	for _, c := range r.snapshot() {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.Disconnect()
		}(c)
	}
	wg.Wait()
}

func (r *Registry) Stats() Stats {
	conns := r.snapshot()
	active := 0
	for _, c := range conns {
		if _, ok := c.machine.State(); ok {
			active++
		}
	}
	return Stats{
		Connections:      len(conns),
		ActiveSessions:   active,
		TotalConnections: r.total.Load(),
		MessagesHandled:  r.handled.Load(),
		SessionsEvicted:  r.evicted.Load(),
	}
}
