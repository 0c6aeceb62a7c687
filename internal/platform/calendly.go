package platform

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"booking-assistant-backend/config"
	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
)

const (
	calendlyTimeButton    = `[data-container="time-button"]`
	calendlyNextButton    = `[data-container="selected-spot"] button`
	calendlyNameInput     = `#full_name_input`
	calendlyEmailInput    = `#email_input`
	calendlySubmitButton  = `button[type="submit"]`
	calendlyConfirmedPage = `[data-container="booking-container"]`
)

// Calendly books meetings. Availability is read from the scheduling API when
// a token is configured, otherwise from the public booking page.
type Calendly struct {
	cfg    config.CalendlyConfig
	api    *calendlyClient
	loc    *time.Location
	logger *zap.Logger
}

// NewCalendly creates the Calendly adapter.
func NewCalendly(cfg config.CalendlyConfig, logger *zap.Logger) (*Calendly, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	api, err := newCalendlyClient(cfg.APIBaseURL, cfg.APIToken, cfg.EventTypeURI, cfg.HTTPProxy)
	if err != nil {
		return nil, err
	}
	return &Calendly{cfg: cfg, api: api, loc: loc, logger: logger.Named("calendly")}, nil
}

func (c *Calendly) Platform() booking.Platform { return booking.PlatformCalendly }

func (c *Calendly) Capabilities() Capabilities {
	return Capabilities{RequiresCheck: true, DirectCheck: true}
}

// CheckAvailability uses the API when res is nil and the browser otherwise.
func (c *Calendly) CheckAvailability(ctx context.Context, res automation.Resource, d booking.Details) (booking.AvailabilityResult, error) {
	if res == nil {
		return c.checkDirect(ctx, d), nil
	}
	return c.checkInBrowser(ctx, res, d)
}

func (c *Calendly) checkDirect(ctx context.Context, d booking.Details) booking.AvailabilityResult {
	if !c.api.configured() {
		return booking.AvailabilityResult{Fallback: true, Message: "calendly api not configured"}
	}

	day, err := time.ParseInLocation("2006-01-02", d.Date, c.loc)
	if err != nil {
		return booking.AvailabilityResult{Message: fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD.", d.Date)}
	}

	times, err := c.api.availableTimes(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		c.logger.Warn("direct availability check failed, falling back to browser", zap.Error(err))
		return booking.AvailabilityResult{Fallback: true, Message: err.Error()}
	}

	slots := make([]string, 0, len(times))
	for _, t := range times {
		slots = append(slots, t.In(c.loc).Format("3:04 PM"))
	}
	return slotResult(d, slots)
}

func (c *Calendly) checkInBrowser(ctx context.Context, res automation.Resource, d booking.Details) (booking.AvailabilityResult, error) {
	if err := res.Navigate(ctx, c.dayURL(d.Date)); err != nil {
		return booking.AvailabilityResult{}, err
	}
	if err := res.WaitFor(ctx, calendlyTimeButton, 20*time.Second); err != nil {
		return booking.AvailabilityResult{
			Message: fmt.Sprintf("No times are open on %s.", d.Date),
		}, nil
	}
	slots, err := res.Texts(ctx, calendlyTimeButton)
	if err != nil {
		return booking.AvailabilityResult{}, err
	}
	return slotResult(d, slots), nil
}

// slotResult is ready to confirm only when the requested time is offered.
func slotResult(d booking.Details, slots []string) booking.AvailabilityResult {
	if len(slots) == 0 {
		return booking.AvailabilityResult{Message: fmt.Sprintf("No times are open on %s.", d.Date)}
	}
	for _, slot := range slots {
		if sameClock(slot, d.Time) {
			return booking.AvailabilityResult{
				Success:          true,
				Message:          fmt.Sprintf("%s on %s is available.", displayClock(d.Time), d.Date),
				SelectedTime:     slot,
				IsReadyToConfirm: true,
				AvailableSlots:   slots,
			}
		}
	}
	return booking.AvailabilityResult{
		Success:        true,
		Message:        fmt.Sprintf("%s is not available on %s. Open times: %s.", displayClock(d.Time), d.Date, strings.Join(slots, ", ")),
		SelectedTime:   closestSlot(slots, d.Time),
		AvailableSlots: slots,
	}
}

// BookAppointment selects the slot on the day page and submits the invitee form.
func (c *Calendly) BookAppointment(ctx context.Context, res automation.Resource, d booking.Details, _ Verifier) (booking.BookingResult, error) {
	slot := d.SelectedTime
	if slot == "" {
		slot = displayClock(d.Time)
	}

	if err := res.Navigate(ctx, c.dayURL(d.Date)); err != nil {
		return booking.BookingResult{}, err
	}
	if err := res.ClickText(ctx, calendlyTimeButton, "^\\s*"+regexp.QuoteMeta(strings.ToLower(compactClock(slot)))); err != nil {
		return booking.BookingResult{
			Message: fmt.Sprintf("The %s slot on %s is no longer available.", slot, d.Date),
		}, nil
	}
	if err := res.Click(ctx, calendlyNextButton); err != nil {
		return booking.BookingResult{}, err
	}
	if err := res.Fill(ctx, calendlyNameInput, d.Name); err != nil {
		return booking.BookingResult{}, err
	}
	if err := res.Fill(ctx, calendlyEmailInput, d.Email); err != nil {
		return booking.BookingResult{}, err
	}
	if err := res.Click(ctx, calendlySubmitButton); err != nil {
		return booking.BookingResult{}, err
	}
	if err := res.WaitFor(ctx, calendlyConfirmedPage, 30*time.Second); err != nil {
		return booking.BookingResult{Message: "Calendly did not confirm the booking."}, nil
	}

	return booking.BookingResult{
		Success:      true,
		Message:      fmt.Sprintf("Scheduled on %s at %s", d.Date, slot),
		SelectedTime: slot,
	}, nil
}

func (c *Calendly) dayURL(date string) string {
	month := date
	if len(date) >= 7 {
		month = date[:7]
	}
	return fmt.Sprintf("%s/%s?month=%s&date=%s", strings.TrimRight(c.cfg.URL, "/"), date, month, date)
}

// compactClock renders a slot the way Calendly labels its buttons ("2:00pm").
func compactClock(slot string) string {
	t, ok := parseClock(slot)
	if !ok {
		return slot
	}
	return t.Format("3:04pm")
}

var _ Adapter = (*Calendly)(nil)
