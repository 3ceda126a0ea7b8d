// Package booking owns the booking write path: creation under the per-service
// lock with an overlap check, provider status changes and the read models
// built on top of them.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/slotbook/internal/lock"
	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
	"github.com/jwalitptl/slotbook/internal/service/notification"
	"github.com/jwalitptl/slotbook/pkg/auth"
	apperrors "github.com/jwalitptl/slotbook/pkg/errors"
	"github.com/jwalitptl/slotbook/pkg/metrics"
	"github.com/jwalitptl/slotbook/pkg/validator"
)

const (
	MsgSlotTaken = "This time slot is no longer available. Please select another time."

	recentBookingsLimit = 5
)

type Service struct {
	bookings repository.BookingRepository
	services repository.ServiceRepository
	locker   lock.Locker
	notifier notification.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	validate *validator.Validator
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	bookings repository.BookingRepository,
	services repository.ServiceRepository,
	locker lock.Locker,
	notifier notification.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		bookings: bookings,
		services: services,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "booking").Logger(),
		validate: validator.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create books [date startTime, +duration) on a service for the principal.
// The overlap check and the insert run under the service's lock, and the
// store's own constraint backs them up.
func (s *Service) Create(ctx context.Context, p auth.Principal, req *model.CreateBookingRequest) (*model.Booking, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	start, err := model.At(req.Date, req.StartTime)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid date or start time", err)
	}

	svc, err := s.services.Get(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("service", err)
		}
		return nil, apperrors.Internal(err)
	}
	if !svc.IsActive {
		return nil, apperrors.NewNotFound("service", nil)
	}
	end := start.Add(svc.SlotLength())
	day, _ := model.DayBounds(start)

	waitStart := s.now()
	unlock, err := s.locker.Lock(ctx, lockKey(svc.ID))
	s.metrics.ServiceLockLatency.Observe(s.now().Sub(waitStart).Seconds())
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("acquire service lock: %w", err))
	}
	defer unlock()

	existing, err := s.bookings.FindOverlapping(ctx, svc.ID, start, end)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(existing) > 0 {
		return nil, s.conflict(svc.ID, start, existing[0].ID)
	}

	b := &model.Booking{
		ServiceID:  svc.ID,
		UserID:     p.ID,
		ProviderID: svc.ProviderID,
		Date:       day,
		StartTime:  start,
		EndTime:    end,
		Status:     model.StatusPending,
		Notes:      req.Notes,
	}
	if err := s.bookings.Create(ctx, b); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.conflict(svc.ID, start, "")
		}
		return nil, apperrors.Internal(err)
	}
	b.Service = svc.Summary()

	s.metrics.BookingsCreated.Inc()
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("service_id", svc.ID).
		Str("user_id", p.ID).
		Time("start_time", start).
		Msg("booking created")
	return b, nil
}

func (s *Service) conflict(serviceID string, start time.Time, withID string) error {
	s.metrics.BookingConflicts.Inc()
	ev := s.logger.Info().Str("service_id", serviceID).Time("start_time", start)
	if withID != "" {
		ev = ev.Str("conflicts_with", withID)
	}
	ev.Msg("booking rejected: slot taken")
	return apperrors.NewConflict(MsgSlotTaken, repository.ErrConflict)
}

func lockKey(serviceID string) string {
	return "service:" + serviceID
}

// UpdateStatus moves a booking owned by the provider to a new status and
// relays the change to the customer. Completed and cancelled bookings are
// frozen.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, bookingID string, req *model.UpdateBookingStatusRequest) (*model.Booking, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	current, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("booking", err)
		}
		return nil, apperrors.Internal(err)
	}
	if current.ProviderID != p.ID {
		return nil, apperrors.NewNotFound("booking", nil)
	}
	if current.Status.Terminal() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("booking is already %s", current.Status), nil)
	}

	updated, err := s.bookings.UpdateStatus(ctx, bookingID, req.Status, req.Notes)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("booking", err)
		}
		return nil, apperrors.Internal(err)
	}
	if err := s.attachServices(ctx, []*model.Booking{updated}); err != nil {
		return nil, err
	}

	s.metrics.StatusTransitions.WithLabelValues(string(req.Status)).Inc()
	s.logger.Info().
		Str("booking_id", bookingID).
		Str("provider_id", p.ID).
		Str("previous_status", string(current.Status)).
		Str("new_status", string(updated.Status)).
		Msg("booking status updated")

	s.notifier.BookingUpdated(ctx, updated)
	return updated, nil
}

// ListForUser returns the customer's bookings, latest start first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	return s.list(ctx, &model.BookingFilter{UserID: userID})
}

// ListForProvider returns the bookings of every service the provider owns,
// latest start first.
func (s *Service) ListForProvider(ctx context.Context, providerID string) ([]*model.Booking, error) {
	return s.list(ctx, &model.BookingFilter{ProviderID: providerID})
}

func (s *Service) list(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, error) {
	list, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.attachServices(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Dashboard summarises a provider's bookings. Earnings are the current
// price of the service behind each completed booking.
func (s *Service) Dashboard(ctx context.Context, providerID string) (*model.Dashboard, error) {
	var (
		stats model.DashboardStats
		err   error
	)
	if stats.TotalBookings, err = s.bookings.Count(ctx, &model.BookingFilter{ProviderID: providerID}); err != nil {
		return nil, apperrors.Internal(err)
	}
	active := &model.BookingFilter{ProviderID: providerID, Statuses: model.ActiveStatuses}
	if stats.ActiveBookings, err = s.bookings.Count(ctx, active); err != nil {
		return nil, apperrors.Internal(err)
	}

	completed, err := s.list(ctx, &model.BookingFilter{
		ProviderID: providerID,
		Statuses:   []model.BookingStatus{model.StatusCompleted},
	})
	if err != nil {
		return nil, err
	}
	stats.CompletedBookings = len(completed)
	for _, b := range completed {
		if b.Service != nil {
			stats.TotalEarnings += b.Service.Price
		}
	}

	recent, err := s.list(ctx, &model.BookingFilter{
		ProviderID:  providerID,
		NewestFirst: true,
		Limit:       recentBookingsLimit,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("provider_id", providerID).
		Int("total", stats.TotalBookings).
		Float64("earnings", stats.TotalEarnings).
		Msg("dashboard computed")
	return &model.Dashboard{Stats: stats, RecentBookings: recent}, nil
}

// attachServices joins each booking with a summary of its service. Bookings
// whose service has been deleted are left without one.
func (s *Service) attachServices(ctx context.Context, list []*model.Booking) error {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	ids := make([]string, 0, len(list))
	for _, b := range list {
		if _, ok := seen[b.ServiceID]; !ok {
			seen[b.ServiceID] = struct{}{}
			ids = append(ids, b.ServiceID)
		}
	}
	services, err := s.services.GetMany(ctx, ids)
	if err != nil {
		return apperrors.Internal(err)
	}
	for _, b := range list {
		if svc, ok := services[b.ServiceID]; ok {
			b.Service = svc.Summary()
		}
	}
	return nil
}
