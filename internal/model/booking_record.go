package model

import "time"

// BookingRecord is the outcome of one booking attempt. It carries no
// personal details of the customer.
type BookingRecord struct {
	ID           string    `gorm:"primaryKey;size:26"` // ULID
	ConnectionID string    `gorm:"index;size:64;not null"`
	Platform     string    `gorm:"index;size:32;not null"`
	Outcome      string    `gorm:"size:32;not null"`
	Message      string    `gorm:"size:512"`
	CreatedAt    time.Time `gorm:"index;not null"`
}
