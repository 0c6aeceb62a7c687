package notification

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"booking-assistant-backend/internal/booking"
	"booking-assistant-backend/internal/model"
	"booking-assistant-backend/internal/session"
	"booking-assistant-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

const (
	queueSize = 64

	// maxMessageBytes matches the size of BookingRecord.Message.
	maxMessageBytes = 512
)

// WorkerPool records booking outcomes and pushes a notice to the
// subscriptions of the connection that made the booking.
type WorkerPool struct {
	size    int
	jobs    chan session.Outcome
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger

	recorded func(*model.BookingRecord)
}

// NewWorkerPool creates a new worker pool. Push delivery is skipped when
// webpushOptions is nil.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan session.Outcome, queueSize),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		select {
		case o := <-wp.jobs:
			log.Debug("processing outcome", zap.String("conn", o.ConnectionID), zap.String("state", string(o.State)))
			wp.process(ctx, o)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues an outcome without blocking. Outcomes are dropped with a
// warning when the queue is full.
func (wp *WorkerPool) Dispatch(o session.Outcome) {
	select {
	case wp.jobs <- o:
	default:
		wp.logger.Warn("outcome queue full, dropping", zap.String("conn", o.ConnectionID))
	}
}

// OnRecorded registers fn to run after each outcome is stored. It must be
// called before Start.
func (wp *WorkerPool) OnRecorded(fn func(*model.BookingRecord)) {
	wp.recorded = fn
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan session.Outcome {
	return wp.jobs
}

func (wp *WorkerPool) process(ctx context.Context, o session.Outcome) {
	rec := &model.BookingRecord{
		ConnectionID: o.ConnectionID,
		Platform:     string(o.Platform),
		Outcome:      string(o.State),
		Message:      truncate(o.Message, maxMessageBytes),
	}
	if err := wp.store.RecordOutcome(ctx, rec); err != nil {
		wp.logger.Error("failed to record booking outcome", zap.Error(err))
	} else if wp.recorded != nil {
		wp.recorded(rec)
	}

	if wp.webpush == nil {
		return
	}
	subs, err := wp.store.SubscriptionsFor(ctx, o.ConnectionID)
	if err != nil {
		wp.logger.Error("failed to fetch subscriptions", zap.String("conn", o.ConnectionID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	wp.logger.Info("sending booking notifications", zap.Int("count", len(subs)), zap.String("conn", o.ConnectionID))
	payload := []byte(noticeText(o))
	for _, sub := range subs {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions answer 410 Gone.
	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.logger.Warn("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}

func noticeText(o session.Outcome) string {
	name := booking.DisplayName(o.Platform)
	if o.State == session.StateCompleted {
		return fmt.Sprintf("Your %s booking is confirmed.", name)
	}
	return fmt.Sprintf("Your %s booking could not be completed.", name)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
