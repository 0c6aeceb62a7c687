// Package dispatch runs the model's function-calling loop for one inbound
// message and executes the functions it asks for.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/llm"
	"booking-assistant-backend/internal/parse"
)

// FunctionName is one of the functions declared to the model.
type FunctionName string

const (
	NormalizeBookingDate   FunctionName = "normalizeBookingDate"
	ValidateBookingDetails FunctionName = "validateBookingDetails"
	CheckAvailability      FunctionName = "checkAvailability"
	BookAppointment        FunctionName = "bookAppointment"
	SubmitOTP              FunctionName = "submitOTP"
)

// Functions lists the declared functions in the order they are presented.
var Functions = []FunctionName{
	NormalizeBookingDate,
	ValidateBookingDetails,
	CheckAvailability,
	BookAppointment,
	SubmitOTP,
}

// Booker performs the functions that need the booking site. It is
// implemented by session.Machine.
type Booker interface {
	CheckAvailability(ctx context.Context, update booking.Details) (booking.AvailabilityResult, error)
	BookAppointment(ctx context.Context, update booking.Details) (booking.BookingResult, error)
	SubmitOTP(ctx context.Context, code string) (booking.BookingResult, error)
}

type env struct {
	booker Booker
	now    time.Time
}

type handlerFunc func(ctx context.Context, e env, args json.RawMessage) (any, error)

type function struct {
	decl llm.FunctionDecl
	// say is announced to the user the first time the function runs in a turn.
	say string
	// slow functions drive the site; the client shows a progress indicator.
	slow   bool
	handle handlerFunc
}

func str(desc string) *llm.Schema { return &llm.Schema{Type: "string", Description: desc} }

func platformSchema() *llm.Schema {
	s := str("The booking platform to use")
	for _, p := range booking.Platforms {
		s.Enum = append(s.Enum, string(p))
	}
	return s
}

func object(required []string, props map[string]*llm.Schema) *llm.Schema {
	return &llm.Schema{Type: "object", Properties: props, Required: required}
}

var table = map[FunctionName]function{
	NormalizeBookingDate: {
		decl: llm.FunctionDecl{
			Description: "Validate and normalize a date string into a consistent format",
			Parameters: object([]string{"dateStr"}, map[string]*llm.Schema{
				"dateStr": str("The date string to normalize"),
			}),
		},
		say:    "Let me check that date for you.",
		handle: normalizeDate,
	},
	ValidateBookingDetails: {
		decl: llm.FunctionDecl{
			Description: "Validate all booking details before proceeding with booking",
			Parameters: object([]string{"name", "email", "date", "time", "platform"}, map[string]*llm.Schema{
				"name":     str("Full name of the person booking"),
				"email":    str("Email address for the booking"),
				"date":     str("Date for the booking in YYYY-MM-DD format"),
				"time":     str("Time for the booking in HH:mm format (24-hour)"),
				"platform": platformSchema(),
			}),
		},
		say:    "Let me validate those booking details.",
		handle: validateDetails,
	},
	CheckAvailability: {
		decl: llm.FunctionDecl{
			Description: "Check if a time slot is available on the selected platform. Housecall Pro needs no check.",
			Parameters: object([]string{"name", "email", "date", "time", "platform"}, map[string]*llm.Schema{
				"name":      str("Name of the person booking"),
				"email":     str("Email address for the booking"),
				"date":      str("Date for the booking in YYYY-MM-DD format"),
				"time":      str("Time for the booking in HH:mm format (24-hour)"),
				"platform":  platformSchema(),
				"service":   str("Service type (Housecall Pro)"),
				"partySize": {Type: "integer", Description: "Number of guests for an OpenTable reservation"},
			}),
		},
		say:    "I'll check if that time slot is available.",
		slow:   true,
		handle: checkAvailability,
	},
	BookAppointment: {
		decl: llm.FunctionDecl{
			Description: "Book the appointment on the selected platform.",
			Parameters: object([]string{"name", "email", "platform"}, map[string]*llm.Schema{
				"name":            str("Full name of the person booking"),
				"email":           str("Email address for the booking"),
				"platform":        platformSchema(),
				"date":            str("Date for the booking in YYYY-MM-DD format (required for Calendly and OpenTable)"),
				"time":            str("Time for the booking in HH:mm format (24-hour) (required for Calendly and OpenTable)"),
				"serviceCategory": str("Service category (e.g., Plumbing, Appliances) for Housecall Pro"),
				"serviceType":     str("Specific service type (e.g., Leak Detection, Drain Cleaning) for Housecall Pro"),
				"serviceDetails":  str("Additional details about the service/equipment for Housecall Pro"),
				"phone":           str("Phone number (required for Housecall Pro and OpenTable)"),
				"address":         str("Service address (required for Housecall Pro)"),
				"partySize":       {Type: "integer", Description: "Number of guests for an OpenTable reservation"},
				"occasion":        str("Special occasion (Birthday, Anniversary, etc.) for OpenTable"),
				"specialRequests": str("Special requests or notes for an OpenTable reservation"),
				"customFields":    {Type: "object", Description: "Any additional custom fields required by the form"},
			}),
		},
		say:    "I'll process your booking request now.",
		slow:   true,
		handle: bookAppointment,
	},
	SubmitOTP: {
		decl: llm.FunctionDecl{
			Description: "Submit the one-time passcode the guest received for OpenTable verification",
			Parameters: object([]string{"otp"}, map[string]*llm.Schema{
				"otp": str("The OTP code received by the user"),
			}),
		},
		say:    "I will submit the OTP code for verification.",
		slow:   true,
		handle: submitOTP,
	},
}

// Declarations returns the function set presented to the model.
func Declarations() []llm.FunctionDecl {
	decls := make([]llm.FunctionDecl, 0, len(Functions))
	for _, name := range Functions {
		d := table[name].decl
		d.Name = string(name)
		decls = append(decls, d)
	}
	return decls
}

func lookup(name string) (function, bool) {
	fn, ok := table[FunctionName(name)]
	return fn, ok
}

func normalizeDate(_ context.Context, e env, raw json.RawMessage) (any, error) {
	var args struct {
		DateStr string `json:"dateStr"`
	}
	if err := decodeArgs(NormalizeBookingDate, raw, &args); err != nil {
		return nil, err
	}
	if args.DateStr == "" {
		return nil, argError(NormalizeBookingDate, "dateStr is required")
	}
	return parse.NormalizeDate(args.DateStr, e.now), nil
}

func validateDetails(_ context.Context, _ env, raw json.RawMessage) (any, error) {
	var args detailArgs
	if err := decodeArgs(ValidateBookingDetails, raw, &args); err != nil {
		return nil, err
	}
	v := parse.ValidateFields(parse.Fields{Name: args.Name, Email: args.Email, Date: args.Date, Time: args.Time})
	if _, err := args.platform(ValidateBookingDetails); err != nil {
		v.Errors = append(v.Errors, "Unsupported platform")
		v.IsValid = false
	}
	return v, nil
}

func checkAvailability(ctx context.Context, e env, raw json.RawMessage) (any, error) {
	var args detailArgs
	if err := decodeArgs(CheckAvailability, raw, &args); err != nil {
		return nil, err
	}
	p, err := args.platform(CheckAvailability)
	if err != nil {
		return nil, err
	}
	d := args.details(p, e.now)
	if booking.ChecksAvailability(p) {
		if missing := missingFor(d, booking.FieldName, booking.FieldEmail, booking.FieldDate, booking.FieldTime); len(missing) > 0 {
			return booking.AvailabilityResult{
				Message:       "Some details are needed before checking availability.",
				MissingFields: missing,
			}, nil
		}
	}
	return e.booker.CheckAvailability(ctx, d)
}

func bookAppointment(ctx context.Context, e env, raw json.RawMessage) (any, error) {
	var args detailArgs
	if err := decodeArgs(BookAppointment, raw, &args); err != nil {
		return nil, err
	}
	p, err := args.platform(BookAppointment)
	if err != nil {
		return nil, err
	}
	return e.booker.BookAppointment(ctx, args.details(p, e.now))
}

func submitOTP(ctx context.Context, e env, raw json.RawMessage) (any, error) {
	var args struct {
		OTP flexString `json:"otp"`
	}
	if err := decodeArgs(SubmitOTP, raw, &args); err != nil {
		return nil, err
	}
	if args.OTP == "" {
		return nil, argError(SubmitOTP, "otp is required")
	}
	return e.booker.SubmitOTP(ctx, string(args.OTP))
}
