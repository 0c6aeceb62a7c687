package platform_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"booking-assistant-backend/config"
	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/platform"
	"booking-assistant-backend/internal/testutil"
)

type codeVerifier struct {
	codes []string
	calls int32
}

func (v *codeVerifier) AwaitCode(ctx context.Context) (string, error) {
	n := atomic.AddInt32(&v.calls, 1)
	if int(n) > len(v.codes) {
		return "", errors.New("no more codes")
	}
	return v.codes[n-1], nil
}

func newCalendly(t *testing.T, cfg config.CalendlyConfig) *platform.Calendly {
	t.Helper()
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.URL == "" {
		cfg.URL = "https://calendly.com/acme/30min"
	}
	c, err := platform.NewCalendly(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCalendly_DirectCheck(t *testing.T) {
	d := booking.Details{Platform: booking.PlatformCalendly, Date: "2030-06-19", Time: "14:00"}

	t.Run("not configured asks for fallback", func(t *testing.T) {
		c := newCalendly(t, config.CalendlyConfig{})
		res, err := c.CheckAvailability(context.Background(), nil, d)
		require.NoError(t, err)
		assert.True(t, res.Fallback)
	})

	t.Run("requested slot offered", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/event_type_available_times", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "https://api.calendly.com/event_types/abc", r.URL.Query().Get("event_type"))
			json.NewEncoder(w).Encode(map[string]any{
				"collection": []map[string]any{
					{"status": "available", "start_time": "2030-06-19T14:00:00Z"},
					{"status": "available", "start_time": "2030-06-19T15:30:00Z"},
				},
			})
		}))
		defer server.Close()

		c := newCalendly(t, config.CalendlyConfig{
			APIBaseURL:   server.URL,
			APIToken:     "tok",
			EventTypeURI: "https://api.calendly.com/event_types/abc",
		})
		res, err := c.CheckAvailability(context.Background(), nil, d)
		require.NoError(t, err)
		assert.False(t, res.Fallback)
		assert.True(t, res.Success)
		assert.True(t, res.IsReadyToConfirm)
		assert.Equal(t, "2:00 PM", res.SelectedTime)
		assert.Equal(t, []string{"2:00 PM", "3:30 PM"}, res.AvailableSlots)
	})

	t.Run("api failure asks for fallback", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := newCalendly(t, config.CalendlyConfig{APIBaseURL: server.URL, APIToken: "bad", EventTypeURI: "x"})
		res, err := c.CheckAvailability(context.Background(), nil, d)
		require.NoError(t, err)
		assert.True(t, res.Fallback)
	})
}

func TestCalendly_BrowserCheck(t *testing.T) {
	c := newCalendly(t, config.CalendlyConfig{})
	res := &testutil.FakeResource{
		TextsFunc: func(ctx context.Context, selector string) ([]string, error) {
			return []string{"1:00pm", "2:00pm", "4:30pm"}, nil
		},
	}

	t.Run("ready when requested time is listed", func(t *testing.T) {
		out, err := c.CheckAvailability(context.Background(), res, booking.Details{Date: "2030-06-19", Time: "14:00"})
		require.NoError(t, err)
		assert.True(t, out.IsReadyToConfirm)
		assert.Equal(t, "2:00pm", out.SelectedTime)
		assert.Contains(t, res.Calls()[0], "navigate https://calendly.com/acme/30min/2030-06-19?month=2030-06&date=2030-06-19")
	})

	t.Run("not ready when time is taken", func(t *testing.T) {
		out, err := c.CheckAvailability(context.Background(), res, booking.Details{Date: "2030-06-19", Time: "17:00"})
		require.NoError(t, err)
		assert.True(t, out.Success)
		assert.False(t, out.IsReadyToConfirm)
		assert.Equal(t, "4:30pm", out.SelectedTime)
	})

	t.Run("navigation failure is an error", func(t *testing.T) {
		broken := &testutil.FakeResource{NavigateFunc: func(ctx context.Context, url string) error {
			return errors.New("net::ERR_NAME_NOT_RESOLVED")
		}}
		_, err := c.CheckAvailability(context.Background(), broken, booking.Details{Date: "2030-06-19", Time: "14:00"})
		assert.Error(t, err)
	})
}

func TestCalendly_Book(t *testing.T) {
	c := newCalendly(t, config.CalendlyConfig{})
	res := &testutil.FakeResource{}
	out, err := c.BookAppointment(context.Background(), res, booking.Details{
		Name: "John Doe", Email: "john@x.com", Date: "2030-06-19", Time: "14:00", SelectedTime: "2:00pm",
	}, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Scheduled on 2030-06-19 at 2:00pm", out.Message)

	calls := strings.Join(res.Calls(), "\n")
	assert.Contains(t, calls, "fill #full_name_input=John Doe")
	assert.Contains(t, calls, "fill #email_input=john@x.com")
}

func TestHousecallPro(t *testing.T) {
	h := platform.NewHousecallPro(config.HousecallProConfig{URL: "https://book.example.com"}, zap.NewNop())
	assert.False(t, h.Capabilities().RequiresCheck)

	check, err := h.CheckAvailability(context.Background(), nil, booking.Details{})
	require.NoError(t, err)
	assert.True(t, check.Success)
	assert.Equal(t, "No availability check needed for Housecall Pro. Please proceed with booking.", check.Message)

	t.Run("reports missing form fields", func(t *testing.T) {
		res := &testutil.FakeResource{}
		out, err := h.BookAppointment(context.Background(), res, booking.Details{Name: "Jo", Email: "jo@x.com"}, nil)
		require.NoError(t, err)
		assert.False(t, out.Success)
		require.Len(t, out.MissingFields, 3)
		assert.Equal(t, "Phone Number", out.MissingFields[0].Label)
		assert.Empty(t, res.Calls())
	})

	t.Run("submits complete request", func(t *testing.T) {
		res := &testutil.FakeResource{}
		out, err := h.BookAppointment(context.Background(), res, booking.Details{
			Name: "Jo Smith", Email: "jo@x.com", Phone: "555", Address: "1 Main St", ServiceType: "Drain Cleaning",
		}, nil)
		require.NoError(t, err)
		assert.True(t, out.Success)
		calls := strings.Join(res.Calls(), "\n")
		assert.Contains(t, calls, "navigate https://book.example.com")
		assert.Contains(t, calls, `fill input[name="lastName"]=Smith`)
		assert.Contains(t, calls, `click button[type="submit"]`)
	})
}

func TestOpenTable_Check(t *testing.T) {
	o := platform.NewOpenTable(config.OpenTableConfig{URL: "https://www.opentable.com/r/x", StepTimeoutSecond: 1}, zap.NewNop())
	res := &testutil.FakeResource{
		TextsFunc: func(ctx context.Context, selector string) ([]string, error) {
			return []string{"5:00 PM", "5:30 PM", "8:00 PM"}, nil
		},
	}
	out, err := o.CheckAvailability(context.Background(), res, booking.Details{Date: "2030-06-19", Time: "17:40", PartySize: 2})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.IsReadyToConfirm)
	assert.Equal(t, "5:30 PM", out.SelectedTime)
	assert.Contains(t, res.Calls()[0], "covers=2")
}

func TestOpenTable_BookWithCode(t *testing.T) {
	o := platform.NewOpenTable(config.OpenTableConfig{URL: "https://www.opentable.com/r/x", StepTimeoutSecond: 2}, zap.NewNop())

	var verified atomic.Bool
	res := &testutil.FakeResource{
		ExistsFunc: func(ctx context.Context, selector string) bool {
			switch selector {
			case `[data-test="verification-code-input"]`:
				return !verified.Load()
			case `[data-test="confirmation-page"]`:
				return verified.Load()
			}
			return false
		},
	}
	res.ClickFunc = func(ctx context.Context, selector string) error {
		if selector == `[data-test="verify-code-button"]` {
			verified.Store(true)
		}
		return nil
	}

	v := &codeVerifier{codes: []string{"123456"}}
	d := booking.Details{Name: "Jane Roe", Email: "jane@x.com", Phone: "555", Date: "2030-06-19", SelectedTime: "5:30 PM"}

	done := make(chan booking.BookingResult, 1)
	go func() {
		out, err := o.BookAppointment(context.Background(), res, d, v)
		assert.NoError(t, err)
		done <- out
	}()

	select {
	case out := <-done:
		assert.True(t, out.Success)
		assert.False(t, out.NeedsOTP)
	case <-time.After(5 * time.Second):
		t.Fatal("booking did not finish")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))
	assert.Contains(t, strings.Join(res.Calls(), "\n"), `fill [data-test="verification-code-input"]=123456`)
}

func TestOpenTable_BookWithoutSelectedTime(t *testing.T) {
	o := platform.NewOpenTable(config.OpenTableConfig{}, zap.NewNop())
	out, err := o.BookAppointment(context.Background(), &testutil.FakeResource{}, booking.Details{}, nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestRegistry(t *testing.T) {
	r := platform.NewRegistry(
		platform.NewOpenTable(config.OpenTableConfig{}, zap.NewNop()),
		platform.NewHousecallPro(config.HousecallProConfig{}, zap.NewNop()),
	)
	assert.Equal(t, []booking.Platform{booking.PlatformHousecallPro, booking.PlatformOpenTable}, r.Platforms())

	_, err := r.Get(booking.PlatformCalendly)
	assert.Error(t, err)
	a, err := r.Get(booking.PlatformOpenTable)
	require.NoError(t, err)
	assert.True(t, a.Capabilities().OTP)
}
