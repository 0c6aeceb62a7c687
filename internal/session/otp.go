package session

import (
	"context"
	"errors"

	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/platform"
)

var errRaceAborted = errors.New("verification aborted")

// otpRace runs one booking attempt in the background. The attempt may pause
// for a verification code; whoever waits on the race learns either that a code
// is needed or the attempt's final result, whichever comes first.
type otpRace struct {
	ctx    context.Context
	cancel context.CancelFunc

	needs chan struct{} // one pending "code needed" notice at most
	codes chan string
	done  chan struct{}

	result booking.BookingResult
	err    error
}

func startRace(parent context.Context, adapter platform.Adapter, res automation.Resource, d booking.Details) *otpRace {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	r := &otpRace{
		ctx:    ctx,
		cancel: cancel,
		needs:  make(chan struct{}, 1),
		codes:  make(chan string),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		r.result, r.err = adapter.BookAppointment(ctx, res, d, r)
	}()
	return r
}

// AwaitCode implements platform.Verifier for the running attempt.
func (r *otpRace) AwaitCode(ctx context.Context) (string, error) {
	select {
	case r.needs <- struct{}{}:
	default:
	}
	select {
	case code := <-r.codes:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.ctx.Done():
		return "", errRaceAborted
	}
}

// wait blocks until the attempt needs a code (pending is true) or finishes.
func (r *otpRace) wait() (res booking.BookingResult, pending bool, err error) {
	select {
	case <-r.needs:
		return booking.BookingResult{
			NeedsOTP: true,
			Message:  "A verification code was sent to the guest. Ask the user for it and call submitOTP.",
		}, true, nil
	case <-r.done:
		return r.result, false, r.err
	}
}

// submit hands code to the attempt. It reports false if the attempt already
// finished and no longer reads codes.
func (r *otpRace) submit(code string) bool {
	select {
	case r.codes <- code:
		return true
	case <-r.done:
		return false
	}
}

// abort stops the attempt and waits for it to return, so the resource it
// holds can be released afterwards.
func (r *otpRace) abort() {
	r.cancel()
	<-r.done
}

var _ platform.Verifier = (*otpRace)(nil)
