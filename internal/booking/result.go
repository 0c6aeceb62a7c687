package booking

// MissingField tells the model which detail it still has to ask for.
type MissingField struct {
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// AvailabilityResult is returned by an availability check.
type AvailabilityResult struct {
	Success          bool           `json:"success"`
	Message          string         `json:"message"`
	MissingFields    []MissingField `json:"missingFields,omitempty"`
	SelectedTime     string         `json:"selectedTime,omitempty"`
	IsReadyToConfirm bool           `json:"isReadyToConfirm"`
	AvailableSlots   []string       `json:"availableSlots,omitempty"`

	// Fallback is set by a direct (non-automation) check that could not reach a
	// conclusion; the caller retries the check with an automation resource.
	Fallback bool `json:"-"`
}

// BookingResult is returned by a booking attempt or an OTP submission.
// Success and NeedsOTP are never both true.
type BookingResult struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	MissingFields []MissingField `json:"missingFields,omitempty"`
	NeedsOTP      bool           `json:"needsOTP,omitempty"`
	SelectedTime  string         `json:"selectedTime,omitempty"`
}
