// Package platform holds the adapters that drive each booking site.
package platform

import (
	"context"
	"fmt"

	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
)

// Capabilities describes how the orchestrator may call an adapter.
type Capabilities struct {
	// RequiresCheck means a booking must follow a successful availability check.
	RequiresCheck bool
	// DirectCheck means CheckAvailability accepts a nil Resource and may ask
	// for a retry through the browser by setting AvailabilityResult.Fallback.
	DirectCheck bool
	// OTP means BookAppointment may stop at a verification step and wait for a
	// code through its Verifier.
	OTP bool
}

// Verifier hands a one-time passcode to a running booking attempt.
type Verifier interface {
	// AwaitCode announces that the attempt reached the verification step and
	// blocks until the user supplies a code or ctx ends.
	AwaitCode(ctx context.Context) (string, error)
}

// Adapter performs availability checks and bookings on one platform.
// Calls may take minutes; a returned error means the site or the browser
// failed, while an unsuccessful result is a normal outcome.
type Adapter interface {
	Platform() booking.Platform
	Capabilities() Capabilities
	CheckAvailability(ctx context.Context, res automation.Resource, d booking.Details) (booking.AvailabilityResult, error)
	BookAppointment(ctx context.Context, res automation.Resource, d booking.Details, v Verifier) (booking.BookingResult, error)
}

// Registry resolves adapters by platform.
type Registry struct {
	adapters map[booking.Platform]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[booking.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for p.
func (r *Registry) Get(p booking.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("unsupported platform %q", p)
	}
	return a, nil
}

// Platforms lists the registered platforms in presentation order.
func (r *Registry) Platforms() []booking.Platform {
	var out []booking.Platform
	for _, p := range booking.Platforms {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
