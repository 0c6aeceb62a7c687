package session

import (
	"errors"
	"fmt"

	"booking-assistant-backend/internal/booking"
)

var (
	ErrNoPendingOTP        = errors.New("there is no booking waiting for a verification code")
	ErrBookingInFlight     = errors.New("a booking attempt is already waiting for a verification code; submit the code or cancel first")
	ErrOperationInProgress = errors.New("another booking step is still running")
	ErrClosed              = errors.New("connection closed")
)

// ProtocolError is a call the current session state does not allow. The
// session is left unchanged and the caller may continue the conversation.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// ResourceError means the automation resource could not be created. No
// session survives it.
type ResourceError struct {
	Err error
}

func (e *ResourceError) Error() string { return "automation unavailable: " + e.Err.Error() }
func (e *ResourceError) Unwrap() error { return e.Err }

// AdapterError wraps a failure raised by a platform adapter. The session
// moved to error and was torn down.
type AdapterError struct {
	Platform booking.Platform
	Op       string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Platform, e.Op, e.Err)
}
func (e *AdapterError) Unwrap() error { return e.Err }
