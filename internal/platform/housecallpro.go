package platform

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"booking-assistant-backend/config"
	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/booking"
)

const (
	hcpServiceCard    = `[data-testid="service-card"]`
	hcpFirstName      = `input[name="firstName"]`
	hcpLastName       = `input[name="lastName"]`
	hcpEmail          = `input[name="email"]`
	hcpPhone          = `input[name="phone"]`
	hcpStreet         = `input[name="street"]`
	hcpNotes          = `textarea[name="notes"]`
	hcpSubmit         = `button[type="submit"]`
	hcpConfirmation   = `[data-testid="booking-confirmation"]`
	hcpNoCheckMessage = "No availability check needed for Housecall Pro. Please proceed with booking."
)

// HousecallPro books service visits. The provider schedules the visit itself,
// so there is no availability step.
type HousecallPro struct {
	cfg    config.HousecallProConfig
	logger *zap.Logger
}

// NewHousecallPro creates the Housecall Pro adapter.
func NewHousecallPro(cfg config.HousecallProConfig, logger *zap.Logger) *HousecallPro {
	return &HousecallPro{cfg: cfg, logger: logger.Named("housecallpro")}
}

func (h *HousecallPro) Platform() booking.Platform { return booking.PlatformHousecallPro }

func (h *HousecallPro) Capabilities() Capabilities {
	return Capabilities{DirectCheck: true}
}

func (h *HousecallPro) CheckAvailability(_ context.Context, _ automation.Resource, _ booking.Details) (booking.AvailabilityResult, error) {
	return booking.AvailabilityResult{Success: true, Message: hcpNoCheckMessage}, nil
}

// BookAppointment fills the request form. Fields the form needs beyond name
// and email are reported back as missing so the model can ask for them.
func (h *HousecallPro) BookAppointment(ctx context.Context, res automation.Resource, d booking.Details, _ Verifier) (booking.BookingResult, error) {
	var missing []booking.MissingField
	if d.Phone == "" {
		missing = append(missing, booking.MissingField{Label: booking.FieldPhone.Label(), Required: true})
	}
	if d.Address == "" {
		missing = append(missing, booking.MissingField{Label: "Service Address", Required: true})
	}
	if d.ServiceCategory == "" && d.ServiceType == "" && d.ServiceDetails == "" {
		missing = append(missing, booking.MissingField{Label: "Service Details", Required: true})
	}
	if len(missing) > 0 {
		return booking.BookingResult{Message: "Additional information needed", MissingFields: missing}, nil
	}

	if err := res.Navigate(ctx, h.cfg.URL); err != nil {
		return booking.BookingResult{}, err
	}

	service := d.ServiceType
	if service == "" {
		service = d.ServiceCategory
	}
	if service != "" {
		if err := res.ClickText(ctx, hcpServiceCard, "(?i)"+regexp.QuoteMeta(service)); err != nil {
			h.logger.Debug("no matching service card", zap.String("service", service), zap.Error(err))
			return booking.BookingResult{
				Message:       fmt.Sprintf("Could not find a service matching %q.", service),
				MissingFields: []booking.MissingField{{Label: "Service Details", Required: true}},
			}, nil
		}
	}

	first, last := splitName(d.Name)
	steps := []struct{ selector, value string }{
		{hcpFirstName, first},
		{hcpLastName, last},
		{hcpEmail, d.Email},
		{hcpPhone, d.Phone},
		{hcpStreet, d.Address},
	}
	for _, step := range steps {
		if step.value == "" {
			continue
		}
		if err := res.Fill(ctx, step.selector, step.value); err != nil {
			return booking.BookingResult{}, err
		}
	}
	if notes := serviceNotes(d); notes != "" && res.Exists(ctx, hcpNotes) {
		if err := res.Fill(ctx, hcpNotes, notes); err != nil {
			return booking.BookingResult{}, err
		}
	}

	if err := res.Click(ctx, hcpSubmit); err != nil {
		return booking.BookingResult{}, err
	}
	if err := res.WaitFor(ctx, hcpConfirmation, 30*time.Second); err != nil {
		return booking.BookingResult{Message: "Housecall Pro did not confirm the request."}, nil
	}

	return booking.BookingResult{
		Success: true,
		Message: "Your booking was successful. We'll send you an email confirmation.",
	}, nil
}

func serviceNotes(d booking.Details) string {
	var parts []string
	for _, p := range []string{d.ServiceCategory, d.ServiceType, d.ServiceDetails} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	keys := make([]string, 0, len(d.CustomFields))
	for k := range d.CustomFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+d.CustomFields[k])
	}
	return strings.Join(parts, "\n")
}

var _ Adapter = (*HousecallPro)(nil)
