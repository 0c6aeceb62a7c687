package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"booking-assistant-backend/config"
	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
)

const (
	otTimeSlot         = `[data-test="time-slot"]`
	otFirstName        = `#firstName`
	otLastName         = `#lastName`
	otPhone            = `#phoneNumber`
	otEmail            = `#email`
	otSpecialRequests  = `#specialRequests`
	otOccasion         = `#occasion`
	otCompleteButton   = `[data-test="complete-reservation-button"]`
	otVerifyButton     = `[data-test="verify-code-button"]`
	otConfirmationPage = `[data-test="confirmation-page"]`
)

var (
	otCodeInputs  = []string{`[data-test="verification-code-input"]`, `#emailVerificationCode`, `input[inputmode="numeric"]`}
	otErrorMarker = []string{`[data-test="error-message"]`, `#emailVerificationCode-error`}
)

// OpenTable makes restaurant reservations. Completing a reservation usually
// requires a verification code sent to the guest.
type OpenTable struct {
	cfg    config.OpenTableConfig
	poll   time.Duration
	logger *zap.Logger
}

// NewOpenTable creates the OpenTable adapter.
func NewOpenTable(cfg config.OpenTableConfig, logger *zap.Logger) *OpenTable {
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = 3
	}
	if cfg.StepTimeoutSecond <= 0 {
		cfg.StepTimeoutSecond = 30
	}
	if cfg.DefaultPartySize <= 0 {
		cfg.DefaultPartySize = 4
	}
	return &OpenTable{cfg: cfg, poll: 500 * time.Millisecond, logger: logger.Named("opentable")}
}

func (o *OpenTable) Platform() booking.Platform { return booking.PlatformOpenTable }

func (o *OpenTable) Capabilities() Capabilities {
	return Capabilities{RequiresCheck: true, OTP: true}
}

// CheckAvailability loads the restaurant page for the requested party, date
// and time and selects the offered slot closest to the requested time.
func (o *OpenTable) CheckAvailability(ctx context.Context, res automation.Resource, d booking.Details) (booking.AvailabilityResult, error) {
	if err := res.Navigate(ctx, o.searchURL(d)); err != nil {
		return booking.AvailabilityResult{}, err
	}
	if err := res.WaitFor(ctx, otTimeSlot, o.stepTimeout()); err != nil {
		return booking.AvailabilityResult{
			Message: fmt.Sprintf("No tables available around %s on %s.", displayClock(d.Time), d.Date),
		}, nil
	}
	slots, err := res.Texts(ctx, otTimeSlot)
	if err != nil {
		return booking.AvailabilityResult{}, err
	}
	if len(slots) == 0 {
		return booking.AvailabilityResult{
			Message: fmt.Sprintf("No tables available around %s on %s.", displayClock(d.Time), d.Date),
		}, nil
	}

	return booking.AvailabilityResult{
		Success:          true,
		Message:          "Available times found: " + strings.Join(slots, ", "),
		SelectedTime:     closestSlot(slots, d.Time),
		IsReadyToConfirm: true,
		AvailableSlots:   slots,
	}, nil
}

// BookAppointment continues from the page left by CheckAvailability. When the
// site asks for a verification code the attempt blocks on v until one arrives.
func (o *OpenTable) BookAppointment(ctx context.Context, res automation.Resource, d booking.Details, v Verifier) (booking.BookingResult, error) {
	if d.SelectedTime == "" {
		return booking.BookingResult{Message: "No time slot has been selected yet. Check availability first."}, nil
	}
	if err := res.ClickText(ctx, otTimeSlot, "^\\s*"+regexp.QuoteMeta(d.SelectedTime)); err != nil {
		return booking.BookingResult{Message: fmt.Sprintf("The %s slot is no longer available.", d.SelectedTime)}, nil
	}

	first, last := splitName(d.Name)
	for _, step := range []struct{ selector, value string }{
		{otFirstName, first},
		{otLastName, last},
		{otPhone, d.Phone},
		{otEmail, d.Email},
	} {
		if step.value == "" {
			continue
		}
		if err := res.Fill(ctx, step.selector, step.value); err != nil {
			return booking.BookingResult{}, err
		}
	}
	if d.Occasion != "" && res.Exists(ctx, otOccasion) {
		if err := res.Select(ctx, otOccasion, d.Occasion); err != nil {
			o.logger.Debug("occasion not offered", zap.String("occasion", d.Occasion), zap.Error(err))
		}
	}
	if d.SpecialRequests != "" && res.Exists(ctx, otSpecialRequests) {
		if err := res.Fill(ctx, otSpecialRequests, d.SpecialRequests); err != nil {
			return booking.BookingResult{}, err
		}
	}
	if err := res.Click(ctx, otCompleteButton); err != nil {
		return booking.BookingResult{}, err
	}

	for attempt := 0; attempt < o.cfg.MaxOTPAttempts; attempt++ {
		step, err := o.awaitStep(ctx, res)
		if err != nil {
			return booking.BookingResult{}, err
		}
		if step == stepConfirmed {
			return o.confirmed(d), nil
		}
		if v == nil {
			return booking.BookingResult{}, errors.New("verification requested but no verifier supplied")
		}

		code, err := v.AwaitCode(ctx)
		if err != nil {
			return booking.BookingResult{}, fmt.Errorf("waiting for verification code: %w", err)
		}
		input := o.codeInput(ctx, res)
		if err := res.Fill(ctx, input, code); err != nil {
			return booking.BookingResult{}, err
		}
		if err := res.Click(ctx, otVerifyButton); err != nil {
			return booking.BookingResult{}, err
		}

		step, err = o.awaitOutcome(ctx, res)
		if err != nil {
			return booking.BookingResult{}, err
		}
		if step == stepConfirmed {
			return o.confirmed(d), nil
		}
		o.logger.Info("verification code rejected", zap.Int("attempt", attempt+1))
	}

	return booking.BookingResult{Message: "The verification code was not accepted. Please start the reservation again."}, nil
}

func (o *OpenTable) confirmed(d booking.Details) booking.BookingResult {
	return booking.BookingResult{
		Success:      true,
		Message:      fmt.Sprintf("Reservation confirmed for %s at %s.", d.Date, d.SelectedTime),
		SelectedTime: d.SelectedTime,
	}
}

type otStep int

const (
	stepConfirmed otStep = iota
	stepNeedsCode
	stepRejected
)

// awaitStep waits until the page shows either the confirmation or a code input.
func (o *OpenTable) awaitStep(ctx context.Context, res automation.Resource) (otStep, error) {
	return o.pollUntil(ctx, func() (otStep, bool) {
		if res.Exists(ctx, otConfirmationPage) {
			return stepConfirmed, true
		}
		for _, sel := range otCodeInputs {
			if res.Exists(ctx, sel) {
				return stepNeedsCode, true
			}
		}
		return 0, false
	})
}

// awaitOutcome waits for the result of a code submission.
func (o *OpenTable) awaitOutcome(ctx context.Context, res automation.Resource) (otStep, error) {
	return o.pollUntil(ctx, func() (otStep, bool) {
		if res.Exists(ctx, otConfirmationPage) {
			return stepConfirmed, true
		}
		for _, sel := range otErrorMarker {
			if res.Exists(ctx, sel) {
				return stepRejected, true
			}
		}
		return 0, false
	})
}

func (o *OpenTable) pollUntil(ctx context.Context, check func() (otStep, bool)) (otStep, error) {
	deadline := time.NewTimer(o.stepTimeout())
	defer deadline.Stop()
	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	for {
		if step, ok := check(); ok {
			return step, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline.C:
			return 0, errors.New("opentable page did not reach an expected state")
		case <-ticker.C:
		}
	}
}

func (o *OpenTable) codeInput(ctx context.Context, res automation.Resource) string {
	for _, sel := range otCodeInputs {
		if res.Exists(ctx, sel) {
			return sel
		}
	}
	return otCodeInputs[0]
}

func (o *OpenTable) searchURL(d booking.Details) string {
	party := d.PartySize
	if party <= 0 {
		party = o.cfg.DefaultPartySize
	}
	q := url.Values{}
	q.Set("covers", strconv.Itoa(party))
	q.Set("dateTime", d.Date+"T"+d.Time)
	return o.cfg.URL + "?" + q.Encode()
}

func (o *OpenTable) stepTimeout() time.Duration {
	return time.Duration(o.cfg.StepTimeoutSecond) * time.Second
}

var _ Adapter = (*OpenTable)(nil)
