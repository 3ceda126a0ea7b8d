// Package notification relays booking updates to the customer's real-time
// channel. Delivery is best effort and never fails the caller.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/pkg/messaging"
	"github.com/jwalitptl/slotbook/pkg/metrics"
)

const (
	EventBookingUpdate = "BOOKING_UPDATE"
	channelPrefix      = "booking_updates:"

	defaultPublishTimeout = 5 * time.Second
)

// Channel is the pub/sub channel a customer's updates are published on.
func Channel(userID string) string {
	return channelPrefix + userID
}

type Service interface {
	BookingUpdated(ctx context.Context, booking *model.Booking)
}

// Relay is the Service backed by a message broker.
type Relay struct {
	broker  messaging.Publisher
	logger  zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

type Option func(*Relay)

func WithTimeout(d time.Duration) Option {
	return func(s *Relay) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Relay) { s.now = now }
}

func NewRelay(broker messaging.Publisher, logger zerolog.Logger, m *metrics.Metrics, opts ...Option) *Relay {
	s := &Relay{
		broker:  broker,
		logger:  logger.With().Str("component", "notification").Logger(),
		metrics: m,
		timeout: defaultPublishTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookingUpdated publishes asynchronously and returns immediately. The
// publish outlives the caller's context but is bounded by the relay timeout.
func (s *Relay) BookingUpdated(ctx context.Context, booking *model.Booking) {
	msg := messaging.Message{
		Type:      EventBookingUpdate,
		UserID:    booking.UserID,
		Data:      booking,
		Timestamp: s.now().UTC(),
	}
	pubCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.publish(pubCtx, Channel(booking.UserID), msg, booking.ID)
	}()
}

func (s *Relay) publish(ctx context.Context, channel string, msg messaging.Message, bookingID string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.NotificationsFailed.Inc()
			s.logger.Error().Interface("panic", r).Str("booking_id", bookingID).Msg("notification publish panicked")
		}
	}()

	if err := s.broker.Publish(ctx, channel, msg); err != nil {
		s.metrics.NotificationsFailed.Inc()
		s.logger.Warn().Err(err).
			Str("channel", channel).
			Str("booking_id", bookingID).
			Msg("failed to publish booking update")
		return
	}
	s.metrics.NotificationsPublished.Inc()
}

// Wait blocks until every in-flight publish has finished or ctx is done.
func (s *Relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
