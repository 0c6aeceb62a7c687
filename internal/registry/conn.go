package registry

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"booking-assistant-backend/internal/dispatch"
	"booking-assistant-backend/internal/llm"
	"booking-assistant-backend/internal/session"
)

const busyReply = "I'm still working on your previous message. Please wait a moment and try again."

// Conn is one client connection. Inbound messages are handled one at a time
// in arrival order.
type Conn struct {
	id        string
	r         *Registry
	transport Transport
	history   *dispatch.History
	machine   *session.Machine
	queue     chan Inbound

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	logger *zap.Logger
}

func (c *Conn) ID() string { return c.id }

// Done is closed once the connection has been disconnected and its session
// torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Receive parses a raw client payload and queues it. When the queue is full
// the client is told to wait and the payload is dropped.
func (c *Conn) Receive(raw []byte) {
	in := ParseInbound(raw)
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.queue <- in:
	default:
		c.logger.Warn("inbound queue full, rejecting message")
		c.send(dispatch.ErrorMessage(busyReply))
	}
}

func (c *Conn) work() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case in := <-c.queue:
			if c.ctx.Err() != nil {
				return
			}
			c.handle(in)
		}
	}
}

func (c *Conn) handle(in Inbound) {
	if in.Kind == KindCancelBooking {
		c.machine.Cancel("cancelled by user")
	}

	err := c.r.opts.Loop.RunTurn(c.ctx, c.machine, c.history, in.Text, c.send)
	c.r.handled.Add(1)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && c.ctx.Err() != nil:
		c.logger.Debug("turn interrupted by disconnect")
	default:
		c.logger.Warn("turn aborted", zap.Error(err))
	}
}

func (c *Conn) send(msg dispatch.Message) {
	if err := c.transport.Send(c.ctx, msg); err != nil {
		c.logger.Debug("failed to deliver message", zap.Error(err))
	}
}

// Disconnect removes the connection and tears its session down. It blocks
// until the teardown finished or the disconnect grace period ran out, and is
// safe to call more than once.
func (c *Conn) Disconnect() {
	c.once.Do(func() {
		c.cancel()
		c.r.remove(c.id)

		ctx := context.Background()
		if grace := c.r.opts.DisconnectGrace; grace > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, grace)
			defer cancel()
		}
		c.machine.Close(ctx)

		if c.r.opts.OnDisconnect != nil {
			c.r.opts.OnDisconnect(c.id)
		}
		close(c.done)
		c.logger.Info("client disconnected")
	})
}

func assistantTurn(text string) llm.Turn {
	return llm.Turn{Role: llm.RoleAssistant, Content: text}
}
