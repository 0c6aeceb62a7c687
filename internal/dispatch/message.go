package dispatch

import "booking-assistant-backend/internal/booking"

const SenderBot = "bot"

// Message is one outbound event on a connection.
type Message struct {
	Sender          string                 `json:"sender,omitempty"`
	Text            string                 `json:"text,omitempty"`
	IsComplete      bool                   `json:"isComplete,omitempty"`
	Error           bool                   `json:"error,omitempty"`
	ExecutingScript *bool                  `json:"executingScript,omitempty"`
	ConnectionID    string                 `json:"connectionId,omitempty"`
	MissingFields   []booking.MissingField `json:"missingFields,omitempty"`
	NeedsOTP        bool                   `json:"needsOTP,omitempty"`
	AvailableSlots  []string               `json:"availableSlots,omitempty"`
}

// Sink delivers messages to the connection. Delivery failures are the
// connection's concern; the loop keeps going.
type Sink func(Message)

func botText(text string) Message {
	return Message{Sender: SenderBot, Text: text, IsComplete: true}
}

// ErrorMessage is the single message sent when a turn fails.
func ErrorMessage(text string) Message {
	return Message{Sender: SenderBot, Text: text, IsComplete: true, Error: true}
}

func executing(on bool) Message {
	return Message{ExecutingScript: &on}
}

// extras are the structured parts of a function result shown with the reply.
type extras struct {
	missing  []booking.MissingField
	needsOTP bool
	slots    []string
}

func extrasOf(result any) extras {
	switch r := result.(type) {
	case booking.AvailabilityResult:
		return extras{missing: r.MissingFields, slots: r.AvailableSlots}
	case booking.BookingResult:
		return extras{missing: r.MissingFields, needsOTP: r.NeedsOTP}
	}
	return extras{}
}

func (e extras) apply(m *Message) {
	m.MissingFields = e.missing
	m.NeedsOTP = e.needsOTP
	m.AvailableSlots = e.slots
}
