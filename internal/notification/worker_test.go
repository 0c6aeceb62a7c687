package notification

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/model"
	"booking-assistant-backend/internal/session"
	"booking-assistant-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func expectRecord(mock sqlmock.Sqlmock, connID, platform, outcome string) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "booking_records"`)).
		WithArgs(sqlmock.AnyArg(), connID, platform, outcome, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectSubscriptions(mock sqlmock.Sqlmock, connID string, endpoints ...string) {
	rows := sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "connection_id", "created_at"})
	for _, e := range endpoints {
		rows.AddRow(e, "test_p256dh", "test_auth", connID, time.Now())
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" WHERE connection_id = $1`)).
		WithArgs(connID).
		WillReturnRows(rows)
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(db), &webpush.Options{}, zap.NewNop())

	wp.Dispatch(session.Outcome{ConnectionID: "c1", State: session.StateCompleted})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, "c1", job.ConnectionID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(db), nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize+10; i++ {
			wp.Dispatch(session.Outcome{ConnectionID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	assert.Len(t, wp.Jobs(), queueSize)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(gormDB), &webpush.Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("records outcome and notifies subscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
				assert.Equal(t, "Your OpenTable booking is confirmed.", string(payload))
				wg.Done()
				return response(http.StatusCreated), nil
			},
		}

		expectRecord(mock, "c1", "opentable", "completed")
		expectSubscriptions(mock, "c1", "https://example.com/push")

		wp.Dispatch(session.Outcome{ConnectionID: "c1", Platform: booking.PlatformOpenTable, State: session.StateCompleted, Message: "booked"})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "Your Calendly booking could not be completed.", string(payload))
				return response(http.StatusGone), nil
			},
		}

		expectRecord(mock, "c2", "calendly", "error")
		expectSubscriptions(mock, "c2", "https://example.com/expired")
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(session.Outcome{ConnectionID: "c2", Platform: booking.PlatformCalendly, State: session.StateError})

		// A short sleep to allow the worker to process the job
		time.Sleep(100 * time.Millisecond)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("send failure keeps subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				wg.Done()
				return nil, errors.New("connection refused")
			},
		}

		expectRecord(mock, "c3", "housecallpro", "completed")
		expectSubscriptions(mock, "c3", "https://example.com/down")

		wp.Dispatch(session.Outcome{ConnectionID: "c3", Platform: booking.PlatformHousecallPro, State: session.StateCompleted})
		wg.Wait()
		time.Sleep(50 * time.Millisecond)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWorkerPool_RecordsWithoutPush(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(gormDB), nil, zap.NewNop())
	wp.sender = &mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			t.Error("push is disabled")
			return response(http.StatusCreated), nil
		},
	}

	expectRecord(mock, "c1", "calendly", "completed")
	wp.process(context.Background(), session.Outcome{ConnectionID: "c1", Platform: booking.PlatformCalendly, State: session.StateCompleted})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPool_OnRecorded(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, store.NewGormStore(gormDB), nil, zap.NewNop())
	var recorded []model.BookingRecord
	wp.OnRecorded(func(rec *model.BookingRecord) { recorded = append(recorded, *rec) })

	expectRecord(mock, "c1", "opentable", "completed")
	wp.process(context.Background(), session.Outcome{ConnectionID: "c1", Platform: booking.PlatformOpenTable, State: session.StateCompleted})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "booking_records"`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()
	wp.process(context.Background(), session.Outcome{ConnectionID: "c2", Platform: booking.PlatformCalendly, State: session.StateError})

	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, recorded, 1, "failed writes are not reported")
	assert.Equal(t, "c1", recorded[0].ConnectionID)
	assert.NotEmpty(t, recorded[0].ID)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "booked", 10, "booked"},
		{"exact", "booked", 6, "booked"},
		{"ascii cut", "booked", 4, "book"},
		{"keeps whole rune", "café", 4, "caf"},
		{"multi-byte at boundary", "日本", 4, "日"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.n))
		})
	}

	long := strings.Repeat("é", 300)
	got := truncate(long, maxMessageBytes)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxMessageBytes)
}

func TestNoticeText(t *testing.T) {
	assert.Equal(t, "Your Housecall Pro booking is confirmed.",
		noticeText(session.Outcome{Platform: booking.PlatformHousecallPro, State: session.StateCompleted}))
	assert.Equal(t, "Your OpenTable booking could not be completed.",
		noticeText(session.Outcome{Platform: booking.PlatformOpenTable, State: session.StateError}))
}
