package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/parse"
)

var wednesday = time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)

func TestDeclarationsMatchTable(t *testing.T) {
	decls := Declarations()
	require.Len(t, decls, len(table), "every table entry must be declared")
	require.Len(t, Functions, len(table))

	for i, d := range decls {
		assert.Equal(t, string(Functions[i]), d.Name)
		fn, ok := lookup(d.Name)
		require.True(t, ok, d.Name)
		assert.NotNil(t, fn.handle, d.Name)
		assert.NotEmpty(t, fn.say, d.Name)
		require.NotNil(t, d.Parameters, d.Name)
		assert.Equal(t, "object", d.Parameters.Type)
		for _, req := range d.Parameters.Required {
			assert.Contains(t, d.Parameters.Properties, req, "%s requires undeclared %s", d.Name, req)
		}
	}
}

func TestSlowFunctions(t *testing.T) {
	for _, name := range Functions {
		want := name == CheckAvailability || name == BookAppointment || name == SubmitOTP
		assert.Equal(t, want, table[name].slow, name)
	}
}

func TestPlatformEnum(t *testing.T) {
	assert.Equal(t, []string{"calendly", "housecallpro", "opentable"}, platformSchema().Enum)
}

func TestNormalizeDateHandler(t *testing.T) {
	got, err := normalizeDate(context.Background(), env{now: wednesday}, json.RawMessage(`{"dateStr":"tomorrow"}`))
	require.NoError(t, err)
	assert.Equal(t, parse.DateResult{Date: "2025-03-13", IsValid: true}, got)

	_, err = normalizeDate(context.Background(), env{now: wednesday}, json.RawMessage(`{}`))
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestValidateDetailsHandler(t *testing.T) {
	got, err := validateDetails(context.Background(), env{}, json.RawMessage(
		`{"name":"Jo","email":"jo@x.com","date":"2025-06-19","time":"14:00","platform":"acuity"}`))
	require.NoError(t, err)
	v := got.(parse.Validation)
	assert.False(t, v.IsValid)
	assert.Equal(t, []string{"Unsupported platform"}, v.Errors)

	got, err = validateDetails(context.Background(), env{}, json.RawMessage(
		`{"name":"Jo","email":"jo@x.com","date":"2025-06-19","time":"14:00","platform":"calendly"}`))
	require.NoError(t, err)
	assert.True(t, got.(parse.Validation).IsValid)
}

func TestCheckAvailabilityReportsMissingFields(t *testing.T) {
	b := &fakeBooker{}
	got, err := checkAvailability(context.Background(), env{booker: b, now: wednesday},
		json.RawMessage(`{"name":"John Doe","platform":"calendly","date":"June 19"}`))
	require.NoError(t, err)

	result := got.(booking.AvailabilityResult)
	assert.False(t, result.Success)
	assert.Equal(t, []booking.MissingField{
		{Label: "Email", Required: true},
		{Label: "Time", Required: true},
	}, result.MissingFields)
	assert.Empty(t, b.checks, "booker must not be called with missing fields")
}

func TestCheckAvailabilitySkipsFieldsForHousecallPro(t *testing.T) {
	b := &fakeBooker{}
	_, err := checkAvailability(context.Background(), env{booker: b, now: wednesday},
		json.RawMessage(`{"platform":"Housecall Pro","service":"Drain Cleaning"}`))
	require.NoError(t, err)
	require.Len(t, b.checks, 1)
	assert.Equal(t, booking.PlatformHousecallPro, b.checks[0].Platform)
	assert.Equal(t, "Drain Cleaning", b.checks[0].ServiceType)
}

func TestDetailArgs(t *testing.T) {
	var args detailArgs
	require.NoError(t, decodeArgs(BookAppointment, json.RawMessage(`{
		"name": " Ada ",
		"email": "ada@example.com",
		"platform": "OpenTable",
		"date": "June 19",
		"time": "7pm",
		"phone": 5550100,
		"partySize": "6",
		"customFields": {"highChair": true, "notes": null}
	}`), &args))

	p, err := args.platform(BookAppointment)
	require.NoError(t, err)
	d := args.details(p, wednesday)

	assert.Equal(t, booking.Details{
		Platform:     booking.PlatformOpenTable,
		Name:         "Ada",
		Email:        "ada@example.com",
		Date:         "2025-06-19",
		Time:         "19:00",
		Phone:        "5550100",
		PartySize:    6,
		CustomFields: map[string]string{"highChair": "true"},
	}, d)
}

func TestDetailArgs_Platform(t *testing.T) {
	p, err := detailArgs{}.platform(CheckAvailability)
	require.NoError(t, err)
	assert.Equal(t, booking.PlatformCalendly, p)

	_, err = detailArgs{Platform: "acuity"}.platform(CheckAvailability)
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, CheckAvailability, argErr.Function)
}

func TestDecodeArgs(t *testing.T) {
	var v struct {
		PartySize count `json:"partySize"`
	}
	assert.NoError(t, decodeArgs(BookAppointment, nil, &v))
	assert.NoError(t, decodeArgs(BookAppointment, json.RawMessage(`{"partySize":4.0}`), &v))
	assert.Equal(t, count(4), v.PartySize)
	assert.Error(t, decodeArgs(BookAppointment, json.RawMessage(`{"partySize":"many"}`), &v))
	assert.Error(t, decodeArgs(BookAppointment, json.RawMessage(`{"partySize":`), &v))
}

func TestSubmitOTPHandler(t *testing.T) {
	b := &fakeBooker{}
	_, err := submitOTP(context.Background(), env{booker: b}, json.RawMessage(`{"otp":123456}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"123456"}, b.otps)

	_, err = submitOTP(context.Background(), env{booker: b}, json.RawMessage(`{"otp":" "}`))
	var argErr *ArgumentError
	assert.ErrorAs(t, err, &argErr)
}
