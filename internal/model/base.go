package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a new random identifier for services and bookings.
func NewID() string {
	return uuid.NewString()
}

// Timestamps are set by the repositories on insert and update.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// Touch sets CreatedAt (when zero) and UpdatedAt to now.
func (t *Timestamps) Touch(now time.Time) {
	now = now.UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}
