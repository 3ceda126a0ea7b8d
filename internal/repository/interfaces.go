package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/slotbook/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when the store refuses a booking because it
	// overlaps another non-cancelled booking of the same service.
	ErrConflict = errors.New("booking overlaps an existing booking")
)

// All repository interfaces in one file
type (
	ServiceRepository interface {
		Create(ctx context.Context, service *model.Service) error
		Get(ctx context.Context, id string) (*model.Service, error)
		// GetMany returns the services found among ids, keyed by id.
		GetMany(ctx context.Context, ids []string) (map[string]*model.Service, error)
		Update(ctx context.Context, service *model.Service) error
		Delete(ctx context.Context, id string) error
		List(ctx context.Context, filter *model.ServiceFilter) ([]*model.Service, error)
		// Categories counts active services per category, sorted by name.
		Categories(ctx context.Context) ([]model.CategoryCount, error)
	}

	BookingRepository interface {
		// Create stores a new booking. Implementations enforce their own
		// overlap constraint and return ErrConflict when it fires.
		Create(ctx context.Context, booking *model.Booking) error
		Get(ctx context.Context, id string) (*model.Booking, error)
		// FindOverlapping returns the non-cancelled bookings of serviceID
		// whose [start, end) intersects [start, end).
		FindOverlapping(ctx context.Context, serviceID string, start, end time.Time) ([]*model.Booking, error)
		List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, error)
		Count(ctx context.Context, filter *model.BookingFilter) (int, error)
		// UpdateStatus sets the status and, when notes is non-nil, the notes.
		UpdateStatus(ctx context.Context, id string, status model.BookingStatus, notes *string) (*model.Booking, error)
	}

	// Pinger is implemented by stores that can report their health.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
