package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
)

const bookingColumns = `id, service_id, user_id, provider_id, date, start_time, end_time,
	status, notes, created_at, updated_at`

type bookingRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewBookingRepository(db *sqlx.DB) repository.BookingRepository {
	return &bookingRepository{db: db, now: time.Now}
}

func (r *bookingRepository) Create(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = model.NewID()
	}
	b.Touch(r.now())
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (:id, :service_id, :user_id, :provider_id, :date, :start_time, :end_time,
			:status, :notes, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		if mapped := mapError(err); errors.Is(mapped, repository.ErrConflict) {
			return mapped
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return normalize(&b), nil
}

func (r *bookingRepository) FindOverlapping(ctx context.Context, serviceID string, start, end time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE service_id = $1
			AND status <> $2
			AND start_time < $3
			AND end_time > $4
		ORDER BY start_time
	`
	return r.selectBookings(ctx, query, serviceID, model.StatusCancelled, end.UTC(), start.UTC())
}

func (r *bookingRepository) List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, error) {
	if filter == nil {
		filter = &model.BookingFilter{}
	}
	clause, args := bookingWhere(filter)
	query := `SELECT ` + bookingColumns + ` FROM bookings` + clause
	if filter.NewestFirst {
		query += ` ORDER BY created_at DESC`
	} else {
		query += ` ORDER BY start_time DESC`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}
	return r.selectBookings(ctx, query, args...)
}

func (r *bookingRepository) Count(ctx context.Context, filter *model.BookingFilter) (int, error) {
	if filter == nil {
		filter = &model.BookingFilter{}
	}
	clause, args := bookingWhere(filter)
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings`+clause, args...); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id string, status model.BookingStatus, notes *string) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $1, notes = COALESCE($2, notes), updated_at = $3
		WHERE id = $4
		RETURNING ` + bookingColumns
	var b model.Booking
	err := r.db.GetContext(ctx, &b, query, status, notes, r.now().UTC(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update booking status: %w", mapError(err))
	}
	return normalize(&b), nil
}

func (r *bookingRepository) selectBookings(ctx context.Context, query string, args ...interface{}) ([]*model.Booking, error) {
	list := make([]*model.Booking, 0)
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	for _, b := range list {
		normalize(b)
	}
	return list, nil
}

func bookingWhere(f *model.BookingFilter) (string, []interface{}) {
	var w where
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.ProviderID != "" {
		w.add("provider_id = ?", f.ProviderID)
	}
	if f.ServiceID != "" {
		w.add("service_id = ?", f.ServiceID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		w.add("status = ANY(?)", pq.Array(statuses))
	}
	if !f.From.IsZero() {
		w.add("start_time >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		w.add("start_time < ?", f.To.UTC())
	}
	return w.build()
}

func normalize(b *model.Booking) *model.Booking {
	b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b
}
