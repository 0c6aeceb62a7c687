package store

// OutcomeCount is the number of booking attempts per platform that ended
// with one outcome.
type OutcomeCount struct {
	Platform string `json:"platform"`
	Outcome  string `json:"outcome"`
	Count    int64  `json:"count"`
}
