package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInbound(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want Inbound
	}{
		{"message", `{"type":"message","payload":{"text":"hi there"}}`, Inbound{Kind: KindMessage, Text: "hi there"}},
		{"confirm", `{"type":"confirm_booking","payload":{"confirm":true}}`, Inbound{Kind: KindConfirmBooking, Text: confirmUtterance}},
		{"decline", `{"type":"confirm_booking","payload":{"confirm":false}}`, Inbound{Kind: KindConfirmBooking, Text: declineUtterance}},
		{"cancel", `{"type":"cancel_booking"}`, Inbound{Kind: KindCancelBooking, Text: cancelUtterance}},
		{"plain text", `book me for friday`, Inbound{Kind: KindMessage, Text: "book me for friday"}},
		{"truncated json", `{"type":"message","payl`, Inbound{Kind: KindMessage, Text: `{"type":"message","payl`}},
		{"unknown type", `{"type":"wave"}`, Inbound{Kind: KindMessage, Text: `{"type":"wave"}`}},
		{"message without text", `{"type":"message","payload":{}}`, Inbound{Kind: KindMessage, Text: `{"type":"message","payload":{}}`}},
		{"confirm without flag", `{"type":"confirm_booking"}`, Inbound{Kind: KindMessage, Text: `{"type":"confirm_booking"}`}},
		{"json string", `"hello"`, Inbound{Kind: KindMessage, Text: `"hello"`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseInbound([]byte(tc.raw)))
		})
	}
}
