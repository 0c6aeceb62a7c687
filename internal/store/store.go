package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"booking-assistant-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store defines the interface for all database operations.
type Store interface {
	RecordOutcome(ctx context.Context, rec *model.BookingRecord) error
	BookingStats(ctx context.Context) ([]OutcomeCount, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsFor(ctx context.Context, connID string) ([]model.PushSubscription, error)
	DeleteSubscriptionsFor(ctx context.Context, connID string) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

// RecordOutcome inserts rec, assigning a time-ordered ID and creation time
// when they are unset.
func (s *gormStore) RecordOutcome(ctx context.Context, rec *model.BookingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.ID == "" {
		rec.ID = ulid.MustNew(ulid.Timestamp(rec.CreatedAt), ulid.DefaultEntropy()).String()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record booking outcome for %s: %w", rec.ConnectionID, err)
	}
	return nil
}

// BookingStats counts recorded outcomes per platform and outcome.
func (s *gormStore) BookingStats(ctx context.Context) ([]OutcomeCount, error) {
	var counts []OutcomeCount
	err := s.db.WithContext(ctx).
		Model(&model.BookingRecord{}).
		Select("platform, outcome, COUNT(*) AS count").
		Group("platform, outcome").
		Order("platform, outcome").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate booking outcomes: %w", err)
	}
	return counts, nil
}

// UpsertSubscription creates sub or replaces the keys and connection of the
// subscription with the same endpoint.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "connection_id"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// SubscriptionsFor returns the subscriptions registered by a connection.
func (s *gormStore) SubscriptionsFor(ctx context.Context, connID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("connection_id = ?", connID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for %s: %w", connID, err)
	}
	return subs, nil
}

// DeleteSubscriptionsFor removes every subscription of a connection and
// reports how many were removed.
func (s *gormStore) DeleteSubscriptionsFor(ctx context.Context, connID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("connection_id = ?", connID).Delete(&model.PushSubscription{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete subscriptions for %s: %w", connID, res.Error)
	}
	return res.RowsAffected, nil
}
