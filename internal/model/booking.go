package model

import "time"

type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusCancelled  BookingStatus = "CANCELLED"
)

// ActiveStatuses are the states a booking can still move out of.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Booking struct {
	ID         string        `json:"id" bson:"_id" db:"id"`
	ServiceID  string        `json:"serviceId" bson:"serviceId" db:"service_id"`
	UserID     string        `json:"userId" bson:"userId" db:"user_id"`
	ProviderID string        `json:"providerId" bson:"providerId" db:"provider_id"`
	Date       time.Time     `json:"date" bson:"date" db:"date"`
	StartTime  time.Time     `json:"startTime" bson:"startTime" db:"start_time"`
	EndTime    time.Time     `json:"endTime" bson:"endTime" db:"end_time"`
	Status     BookingStatus `json:"status" bson:"status" db:"status"`
	Notes      string        `json:"notes,omitempty" bson:"notes,omitempty" db:"notes"`
	Timestamps `bson:",inline"`

	// Service is joined in by the service layer and never persisted.
	Service *ServiceSummary `json:"service,omitempty" bson:"-" db:"-"`
}

// Overlaps is the half-open interval test [StartTime, EndTime) ∩ [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// Blocks reports whether b takes part in conflict checks against [start, end).
func (b *Booking) Blocks(start, end time.Time) bool {
	return b.Status != StatusCancelled && b.Overlaps(start, end)
}

type CreateBookingRequest struct {
	ServiceID string `json:"serviceId" binding:"required"`
	Date      string `json:"date" binding:"required,date"`
	StartTime string `json:"startTime" binding:"required,hhmm"`
	Notes     string `json:"notes" binding:"max=500"`
}

type UpdateBookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required,oneof=CONFIRMED IN_PROGRESS COMPLETED CANCELLED"`
	Notes  *string       `json:"notes" binding:"omitempty,max=500"`
}

// BookingFilter selects bookings. From and To bound StartTime as [From, To)
// when set. Results are ordered by StartTime descending, or by CreatedAt
// descending when NewestFirst is set.
type BookingFilter struct {
	UserID      string
	ProviderID  string
	ServiceID   string
	Statuses    []BookingStatus
	From, To    time.Time
	NewestFirst bool
	Limit       int
}

// Match applies the filter to a single booking.
func (f *BookingFilter) Match(b *Booking) bool {
	switch {
	case f.UserID != "" && b.UserID != f.UserID:
		return false
	case f.ProviderID != "" && b.ProviderID != f.ProviderID:
		return false
	case f.ServiceID != "" && b.ServiceID != f.ServiceID:
		return false
	case !HasStatus(f.Statuses, b.Status):
		return false
	case !f.From.IsZero() && b.StartTime.Before(f.From):
		return false
	case !f.To.IsZero() && !b.StartTime.Before(f.To):
		return false
	}
	return true
}

type DashboardStats struct {
	TotalBookings     int     `json:"totalBookings"`
	ActiveBookings    int     `json:"activeBookings"`
	CompletedBookings int     `json:"completedBookings"`
	TotalEarnings     float64 `json:"totalEarnings"`
}

type Dashboard struct {
	Stats          DashboardStats `json:"stats"`
	RecentBookings []*Booking     `json:"recentBookings"`
}

// NonCancelledStatuses are the states that occupy time on a service.
var NonCancelledStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted}

// HasStatus reports whether s is in set. An empty set matches everything.
func HasStatus(set []BookingStatus, s BookingStatus) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
