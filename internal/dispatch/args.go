package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/parse"
)

// ArgumentError means the model called a function with arguments that do not
// fit its declaration. It is reported back to the model, not to the user.
type ArgumentError struct {
	Function FunctionName
	Reason   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Function, e.Reason)
}

func argError(fn FunctionName, format string, args ...any) error {
	return &ArgumentError{Function: fn, Reason: fmt.Sprintf(format, args...)}
}

func decodeArgs(fn FunctionName, raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return argError(fn, "%v", err)
	}
	return nil
}

// flexString accepts a JSON string or number. Models sometimes send codes
// and phone numbers unquoted.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

// count accepts 4, 4.0 or "4".
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil || f < 0 {
		return fmt.Errorf("expected a non-negative number, got %s", b)
	}
	*c = count(f)
	return nil
}

// detailArgs covers the arguments of every function that carries booking details.
type detailArgs struct {
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	Platform        string         `json:"platform"`
	Service         string         `json:"service"`
	ServiceCategory string         `json:"serviceCategory"`
	ServiceType     string         `json:"serviceType"`
	ServiceDetails  string         `json:"serviceDetails"`
	Phone           flexString     `json:"phone"`
	Address         string         `json:"address"`
	PartySize       count          `json:"partySize"`
	Occasion        string         `json:"occasion"`
	SpecialRequests string         `json:"specialRequests"`
	CustomFields    map[string]any `json:"customFields"`
}

// platform resolves the platform argument. An omitted platform means Calendly.
func (a detailArgs) platform(fn FunctionName) (booking.Platform, error) {
	if strings.TrimSpace(a.Platform) == "" {
		return booking.PlatformCalendly, nil
	}
	p, ok := booking.ParsePlatform(a.Platform)
	if !ok {
		return "", argError(fn, "unsupported platform %q", a.Platform)
	}
	return p, nil
}

// details converts the arguments into a Details update. Dates and times the
// helpers understand are normalized; anything else is passed through.
func (a detailArgs) details(p booking.Platform, now time.Time) booking.Details {
	d := booking.Details{
		Platform:        p,
		Name:            strings.TrimSpace(a.Name),
		Email:           strings.TrimSpace(a.Email),
		Date:            strings.TrimSpace(a.Date),
		Time:            strings.TrimSpace(a.Time),
		Phone:           string(a.Phone),
		Address:         strings.TrimSpace(a.Address),
		ServiceCategory: a.ServiceCategory,
		ServiceType:     a.ServiceType,
		ServiceDetails:  a.ServiceDetails,
		PartySize:       int(a.PartySize),
		Occasion:        a.Occasion,
		SpecialRequests: a.SpecialRequests,
	}
	if d.ServiceType == "" {
		d.ServiceType = a.Service
	}
	if d.Date != "" {
		if r := parse.NormalizeDate(d.Date, now); r.IsValid {
			d.Date = r.Date
		}
	}
	if d.Time != "" {
		if t, ok := parse.NormalizeTime(d.Time); ok {
			d.Time = t
		}
	}
	if len(a.CustomFields) > 0 {
		d.CustomFields = make(map[string]string, len(a.CustomFields))
		for k, v := range a.CustomFields {
			if v != nil {
				d.CustomFields[k] = fmt.Sprint(v)
			}
		}
	}
	return d
}

func missingFor(d booking.Details, fields ...booking.Field) []booking.MissingField {
	var missing []booking.MissingField
	for _, f := range fields {
		if d.Value(f) == "" {
			missing = append(missing, booking.MissingField{Label: f.Label(), Required: true})
		}
	}
	return missing
}
