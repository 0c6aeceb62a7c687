package testutil

import (
	"context"

	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/platform"
)

// FakeAdapter is a platform.Adapter driven by funcs.
type FakeAdapter struct {
	P    booking.Platform
	Caps platform.Capabilities

	CheckFunc func(ctx context.Context, res automation.Resource, d booking.Details) (booking.AvailabilityResult, error)
	BookFunc  func(ctx context.Context, res automation.Resource, d booking.Details, v platform.Verifier) (booking.BookingResult, error)
}

func (f *FakeAdapter) Platform() booking.Platform { return f.P }

func (f *FakeAdapter) Capabilities() platform.Capabilities { return f.Caps }

func (f *FakeAdapter) CheckAvailability(ctx context.Context, res automation.Resource, d booking.Details) (booking.AvailabilityResult, error) {
	if f.CheckFunc == nil {
		return booking.AvailabilityResult{Success: true, IsReadyToConfirm: true, SelectedTime: d.Time, Message: "available"}, nil
	}
	return f.CheckFunc(ctx, res, d)
}

func (f *FakeAdapter) BookAppointment(ctx context.Context, res automation.Resource, d booking.Details, v platform.Verifier) (booking.BookingResult, error) {
	if f.BookFunc == nil {
		return booking.BookingResult{Success: true, Message: "booked"}, nil
	}
	return f.BookFunc(ctx, res, d, v)
}

var _ platform.Adapter = (*FakeAdapter)(nil)
