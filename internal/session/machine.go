// Package session tracks the booking progress of one connection and owns the
// automation resource used to drive the booking site.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/platform"
)

// Config controls session lifetimes.
type Config struct {
	IdleTimeout time.Duration
	SnapshotDir string
}

// Outcome is reported once for every booking attempt that ends a Session.
type Outcome struct {
	ConnectionID string
	Platform     booking.Platform
	State        State
	Message      string
}

// OutcomeFunc receives booking outcomes. It must not block.
type OutcomeFunc func(Outcome)

// session is the per-connection orchestration state. All fields are guarded
// by Machine.mu.
type session struct {
	state    State
	platform booking.Platform
	res      automation.Resource
	details  booking.Details
	lastUsed time.Time

	timer    *time.Timer
	timerGen int

	// busy is set while an adapter call runs synchronously; eviction skips
	// busy sessions.
	busy bool
	race *otpRace
	gone bool
}

// Machine drives the Session of one connection. Operations are expected to be
// called one at a time; overlapping calls are rejected with ErrOperationInProgress.
type Machine struct {
	connID    string
	agent     automation.Agent
	adapters  *platform.Registry
	cfg       Config
	onOutcome OutcomeFunc
	logger    *zap.Logger

	op       sync.Mutex
	inflight sync.WaitGroup

	mu     sync.Mutex
	sess   *session
	closed bool
}

// NewMachine creates the state machine for one connection. No resource is
// acquired until the first call that needs one.
func NewMachine(connID string, agent automation.Agent, adapters *platform.Registry, cfg Config, onOutcome OutcomeFunc, logger *zap.Logger) *Machine {
	if onOutcome == nil {
		onOutcome = func(Outcome) {}
	}
	return &Machine{
		connID:    connID,
		agent:     agent,
		adapters:  adapters,
		cfg:       cfg,
		onOutcome: onOutcome,
		logger:    logger.Named("session").With(zap.String("conn", connID)),
	}
}

// begin claims the machine for one operation.
func (m *Machine) begin() error {
	m.mu.Lock()
	closed := m.closed
	if !closed {
		m.inflight.Add(1)
	}
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !m.op.TryLock() {
		m.inflight.Done()
		return &ProtocolError{Err: ErrOperationInProgress}
	}
	return nil
}

func (m *Machine) end() {
	m.op.Unlock()
	m.inflight.Done()
}

// State reports the current Session state. ok is false when there is no Session.
func (m *Machine) State() (state State, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return StateIdle, false
	}
	return m.sess.state, true
}

// HasResource reports whether an automation resource is currently held.
func (m *Machine) HasResource() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil && m.sess.res != nil
}

// LastUsed reports when the Session was last active.
func (m *Machine) LastUsed() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return time.Time{}, false
	}
	return m.sess.lastUsed, true
}

// CheckAvailability asks the platform whether the requested slot is open.
// Platforms without an availability step answer directly without a Session.
func (m *Machine) CheckAvailability(ctx context.Context, update booking.Details) (booking.AvailabilityResult, error) {
	if err := m.begin(); err != nil {
		return booking.AvailabilityResult{}, err
	}
	defer m.end()

	adapter, err := m.adapters.Get(update.Platform)
	if err != nil {
		return booking.AvailabilityResult{}, &ProtocolError{Err: err}
	}
	if !adapter.Capabilities().RequiresCheck {
		return adapter.CheckAvailability(context.WithoutCancel(ctx), nil, update)
	}

	s, err := m.claim(update)
	if err != nil {
		return booking.AvailabilityResult{}, err
	}
	return m.check(ctx, s, adapter)
}

// BookAppointment books the slot confirmed by a previous availability check.
// If the Session was evicted or never checked, the check runs first.
func (m *Machine) BookAppointment(ctx context.Context, update booking.Details) (booking.BookingResult, error) {
	if err := m.begin(); err != nil {
		return booking.BookingResult{}, err
	}
	defer m.end()

	adapter, err := m.adapters.Get(update.Platform)
	if err != nil {
		return booking.BookingResult{}, &ProtocolError{Err: err}
	}

	m.mu.Lock()
	var merged booking.Details
	if s := m.sess; s != nil && s.platform == update.Platform {
		merged = s.details
	}
	m.mu.Unlock()
	merged.Merge(update)
	if missing := merged.Missing(); len(missing) > 0 {
		return booking.BookingResult{
			Message:       "Some required booking details are missing.",
			MissingFields: missing,
		}, nil
	}

	s, err := m.claim(update)
	if err != nil {
		return booking.BookingResult{}, err
	}

	caps := adapter.Capabilities()
	if caps.RequiresCheck {
		m.mu.Lock()
		ready := s.state == StateAwaitingConfirmation && s.details.IsReadyToConfirm
		m.mu.Unlock()
		if !ready {
			check, err := m.check(ctx, s, adapter)
			if err != nil {
				return booking.BookingResult{}, err
			}
			if !check.Success || !check.IsReadyToConfirm {
				return booking.BookingResult{
					Message:       check.Message,
					MissingFields: check.MissingFields,
					SelectedTime:  check.SelectedTime,
				}, nil
			}
		}
	}

	m.mu.Lock()
	if err := m.transition(s, StateBooking); err != nil {
		m.mu.Unlock()
		return booking.BookingResult{}, err
	}
	m.markBusy(s)
	d := s.details
	m.mu.Unlock()

	res, err := m.ensureResource(ctx, s)
	if err != nil {
		return booking.BookingResult{}, err
	}

	if caps.OTP {
		race := startRace(ctx, adapter, res, d)
		result, pending, err := race.wait()
		if pending {
			m.mu.Lock()
			s.race = race
			m.mu.Unlock()
		}
		return m.finishBooking(s, result, err)
	}

	result, err := adapter.BookAppointment(context.WithoutCancel(ctx), res, d, nil)
	return m.finishBooking(s, result, err)
}

// SubmitOTP delivers a verification code to the booking attempt that is
// waiting for one, on the same resource that started it.
func (m *Machine) SubmitOTP(ctx context.Context, code string) (booking.BookingResult, error) {
	if err := m.begin(); err != nil {
		return booking.BookingResult{}, err
	}
	defer m.end()

	m.mu.Lock()
	s := m.sess
	if s == nil || s.race == nil {
		m.mu.Unlock()
		return booking.BookingResult{}, &ProtocolError{Err: ErrNoPendingOTP}
	}
	if err := m.transition(s, StateBooking); err != nil {
		m.mu.Unlock()
		return booking.BookingResult{}, err
	}
	race := s.race
	m.markBusy(s)
	m.mu.Unlock()

	m.logger.Info("submitting verification code")
	race.submit(code)
	result, pending, err := race.wait()
	if pending {
		result.Message = "That code was not accepted. Ask the user to double-check it and call submitOTP again."
	} else {
		m.mu.Lock()
		s.race = nil
		m.mu.Unlock()
	}
	return m.finishBooking(s, result, err)
}

// Cancel drops the current Session, if any.
func (m *Machine) Cancel(reason string) {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return
	}
	m.teardownIf(s, reason, func() bool { return !s.busy })
}

// SweepIdle tears the Session down if it has been idle longer than threshold.
// It reports whether an eviction happened.
func (m *Machine) SweepIdle(now time.Time, threshold time.Duration) bool {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return false
	}
	return m.teardownIf(s, "sweep", func() bool {
		return !s.busy && now.Sub(s.lastUsed) > threshold
	})
}

// Close stops accepting operations, waits for the one in flight and tears the
// Session down. If ctx ends first, Close returns and the teardown still runs
// once the in-flight call settles; the resource is never released while a call
// is using it.
func (m *Machine) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	settled := make(chan struct{})
	go func() {
		m.inflight.Wait()
		m.mu.Lock()
		s := m.sess
		m.mu.Unlock()
		if s != nil {
			m.teardown(s, "disconnect")
		}
		close(settled)
	}()

	select {
	case <-settled:
	case <-ctx.Done():
		m.logger.Warn("disconnect grace period expired; teardown deferred until the running call settles")
	}
}

// claim returns the Session for update.Platform, creating it in idle if there
// is none. A Session for a different platform is replaced.
func (m *Machine) claim(update booking.Details) (*session, error) {
	m.mu.Lock()
	s := m.sess
	if s != nil && s.race != nil {
		m.mu.Unlock()
		return nil, &ProtocolError{Err: ErrBookingInFlight}
	}
	if s != nil && s.platform != update.Platform {
		m.mu.Unlock()
		m.logger.Info("platform changed, dropping previous session",
			zap.String("from", string(s.platform)), zap.String("to", string(update.Platform)))
		m.teardown(s, "platform changed")
		m.mu.Lock()
		s = nil
	}
	if s == nil {
		s = &session{state: StateIdle, platform: update.Platform, lastUsed: time.Now()}
		m.sess = s
		m.logger.Debug("session created", zap.String("platform", string(update.Platform)))
	}
	if s.details.IsReadyToConfirm && s.details.ChangesSlot(update) {
		// The confirmed slot no longer matches the request.
		m.logger.Info("requested slot changed, confirmation cleared")
		s.details.SelectedTime = ""
		s.details.IsReadyToConfirm = false
	}
	s.details.Merge(update)
	m.mu.Unlock()
	return s, nil
}

// check runs one availability check on s and applies its outcome.
func (m *Machine) check(ctx context.Context, s *session, adapter platform.Adapter) (booking.AvailabilityResult, error) {
	m.mu.Lock()
	if err := m.transition(s, StateChecking); err != nil {
		m.mu.Unlock()
		return booking.AvailabilityResult{}, err
	}
	m.markBusy(s)
	d := s.details
	haveResource := s.res != nil
	m.mu.Unlock()

	callCtx := context.WithoutCancel(ctx)
	var (
		result booking.AvailabilityResult
		err    error
		done   bool
	)
	if adapter.Capabilities().DirectCheck && !haveResource {
		result, err = adapter.CheckAvailability(callCtx, nil, d)
		done = err != nil || !result.Fallback
		if result.Fallback {
			m.logger.Info("direct availability check unavailable, using browser", zap.String("reason", result.Message))
		}
	}
	if !done {
		res, rerr := m.ensureResource(ctx, s)
		if rerr != nil {
			return booking.AvailabilityResult{}, rerr
		}
		result, err = adapter.CheckAvailability(callCtx, res, d)
	}

	if err != nil {
		return booking.AvailabilityResult{}, m.fail(s, "checkAvailability", err)
	}

	m.mu.Lock()
	s.busy = false
	var release automation.Resource
	if result.Success && result.IsReadyToConfirm {
		s.details.Merge(booking.Details{SelectedTime: result.SelectedTime, IsReadyToConfirm: true})
		_ = m.transition(s, StateAwaitingConfirmation)
	} else {
		// Nothing to confirm: stay in checking but give the browser back
		// while the user picks another time.
		s.details.IsReadyToConfirm = false
		release, s.res = s.res, nil
	}
	m.touch(s)
	m.mu.Unlock()

	if release != nil {
		m.release(release)
	}
	return result, nil
}

// ensureResource returns the Session's resource, acquiring one if needed. On
// failure the Session is discarded.
func (m *Machine) ensureResource(ctx context.Context, s *session) (automation.Resource, error) {
	m.mu.Lock()
	res := s.res
	m.mu.Unlock()
	if res != nil {
		return res, nil
	}

	// The resource belongs to the Session, not to the call that created it.
	res, err := m.agent.Acquire(context.WithoutCancel(ctx))
	if err != nil {
		m.logger.Error("failed to acquire automation resource", zap.Error(err))
		m.mu.Lock()
		s.busy = false
		m.mu.Unlock()
		m.teardown(s, "resource unavailable")
		return nil, &ResourceError{Err: err}
	}

	m.mu.Lock()
	if s.gone {
		m.mu.Unlock()
		m.release(res)
		return nil, &ProtocolError{Err: errors.New("session already ended")}
	}
	s.res = res
	m.mu.Unlock()
	m.logger.Debug("automation resource acquired")
	return res, nil
}

// finishBooking applies a booking or OTP result to s.
func (m *Machine) finishBooking(s *session, result booking.BookingResult, err error) (booking.BookingResult, error) {
	if err != nil {
		ferr := m.fail(s, "bookAppointment", err)
		m.onOutcome(Outcome{ConnectionID: m.connID, Platform: s.platform, State: StateError, Message: err.Error()})
		return booking.BookingResult{}, ferr
	}

	m.mu.Lock()
	s.busy = false
	var next State
	switch {
	case result.NeedsOTP:
		result.Success = false
		next = StateAwaitingConfirmation
	case result.Success:
		next = StateCompleted
	default:
		next = StateError
	}
	_ = m.transition(s, next)
	if next == StateAwaitingConfirmation {
		m.touch(s)
	}
	m.mu.Unlock()

	if next.Terminal() {
		m.teardown(s, string(next))
		m.onOutcome(Outcome{ConnectionID: m.connID, Platform: s.platform, State: next, Message: result.Message})
	}
	return result, nil
}

// fail moves s to error after an adapter failure and tears it down.
func (m *Machine) fail(s *session, op string, err error) error {
	m.logger.Error("platform call failed", zap.String("op", op), zap.String("platform", string(s.platform)), zap.Error(err))
	m.mu.Lock()
	s.busy = false
	_ = m.transition(s, StateError)
	m.mu.Unlock()
	m.teardown(s, "error")
	return &AdapterError{Platform: s.platform, Op: op, Err: err}
}

// transition must be called with m.mu held.
func (m *Machine) transition(s *session, to State) error {
	if s.gone {
		return &ProtocolError{Err: errors.New("session already ended")}
	}
	if !CanTransition(s.state, to) {
		return &ProtocolError{Err: fmt.Errorf("cannot go from %s to %s", s.state, to)}
	}
	m.logger.Debug("state change", zap.String("from", string(s.state)), zap.String("to", string(to)))
	s.state = to
	return nil
}

// markBusy must be called with m.mu held.
func (m *Machine) markBusy(s *session) {
	s.busy = true
	s.lastUsed = time.Now()
	if s.timer != nil {
		s.timer.Stop()
	}
}

// touch records activity and re-arms the idle timer. Must be called with m.mu held.
func (m *Machine) touch(s *session) {
	s.lastUsed = time.Now()
	if s.timer != nil {
		s.timer.Stop()
	}
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(m.cfg.IdleTimeout, func() { m.expire(s, gen) })
}

func (m *Machine) expire(s *session, gen int) {
	m.teardownIf(s, "idle timeout", func() bool {
		return m.sess == s && !s.busy && s.timerGen == gen
	})
}

// teardown releases everything s holds and forgets it. Only the first call for
// a given Session does any work; it reports whether this call was that one.
func (m *Machine) teardown(s *session, reason string) bool {
	return m.teardownIf(s, reason, nil)
}

// teardownIf is teardown gated on cond, which is evaluated under m.mu
// together with the rest of the teardown bookkeeping. A nil cond always holds.
func (m *Machine) teardownIf(s *session, reason string, cond func() bool) bool {
	m.mu.Lock()
	if s.gone || (cond != nil && !cond()) {
		m.mu.Unlock()
		return false
	}
	s.gone = true
	if m.sess == s {
		m.sess = nil
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	res, race, state := s.res, s.race, s.state
	s.res, s.race = nil, nil
	m.mu.Unlock()

	if res != nil && state.holdsPageState() && m.cfg.SnapshotDir != "" {
		path, err := automation.SaveSnapshot(context.Background(), res, m.cfg.SnapshotDir, m.connID)
		if err != nil {
			m.logger.Warn("diagnostic snapshot failed", zap.Error(err))
		} else {
			m.logger.Info("diagnostic snapshot saved", zap.String("path", path))
		}
	}
	if race != nil {
		race.abort()
	}
	if res != nil {
		m.release(res)
	}
	m.logger.Info("session torn down", zap.String("reason", reason), zap.String("state", string(state)))
	return true
}

func (m *Machine) release(res automation.Resource) {
	if err := res.Close(); err != nil {
		m.logger.Warn("failed to release automation resource", zap.Error(err))
	}
}
