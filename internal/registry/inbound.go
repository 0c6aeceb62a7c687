package registry

import (
	"bytes"
	"encoding/json"
)

// Kind is the type of a client event.
type Kind string

const (
	KindMessage        Kind = "message"
	KindConfirmBooking Kind = "confirm_booking"
	KindCancelBooking  Kind = "cancel_booking"
)

const (
	confirmUtterance = "Yes, please confirm the booking."
	declineUtterance = "No, please don't book that yet."
	cancelUtterance  = "Please cancel this booking."
)

// Inbound is a parsed client event.
type Inbound struct {
	Kind Kind
	Text string
}

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseInbound decodes a client payload. Anything that is not a recognized
// event is taken verbatim as message text, so no input is ever dropped.
func ParseInbound(raw []byte) Inbound {
	fallback := Inbound{Kind: KindMessage, Text: string(raw)}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fallback
	}

	switch env.Type {
	case KindMessage:
		var p struct {
			Text *string `json:"text"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil || p.Text == nil {
			return fallback
		}
		return Inbound{Kind: KindMessage, Text: *p.Text}
	case KindConfirmBooking:
		var p struct {
			Confirm *bool `json:"confirm"`
		}
		if err := unmarshalPayload(env.Payload, &p); err != nil || p.Confirm == nil {
			return fallback
		}
		text := declineUtterance
		if *p.Confirm {
			text = confirmUtterance
		}
		return Inbound{Kind: KindConfirmBooking, Text: text}
	case KindCancelBooking:
		return Inbound{Kind: KindCancelBooking, Text: cancelUtterance}
	}
	return fallback
}

func unmarshalPayload(payload json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Unmarshal(payload, dst)
}
