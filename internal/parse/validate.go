package parse

import "regexp"

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe  = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// Fields are the booking details checked by ValidateFields.
type Fields struct {
	Name  string
	Email string
	Date  string
	Time  string
}

// Validation lists every problem found; IsValid is true when there are none.
type Validation struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidateFields checks name length and the email, date and time formats.
func ValidateFields(f Fields) Validation {
	errs := []string{}
	if len([]rune(f.Name)) < 2 {
		errs = append(errs, "Name must be at least 2 characters long")
	}
	if !emailRe.MatchString(f.Email) {
		errs = append(errs, "Invalid email address")
	}
	if !dateRe.MatchString(f.Date) {
		errs = append(errs, "Date must be in YYYY-MM-DD format")
	}
	if !timeRe.MatchString(f.Time) {
		errs = append(errs, "Time must be in HH:MM format")
	}
	return Validation{IsValid: len(errs) == 0, Errors: errs}
}
