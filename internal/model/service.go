package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/jwalitptl/slotbook/pkg/errors"
)

// Weekdays lists the keys of WorkingHours in time.Weekday order.
var Weekdays = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// WeekdayName returns the lower-case English name used as a WorkingHours key.
func WeekdayName(d time.Weekday) string {
	return Weekdays[d]
}

// DaySchedule is the bookable window of one weekday, as "HH:MM" in UTC.
type DaySchedule struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Start   string `json:"start" bson:"start" binding:"omitempty,hhmm"`
	End     string `json:"end" bson:"end" binding:"omitempty,hhmm"`
}

// WorkingHours maps a weekday name to its schedule. Missing days are closed.
type WorkingHours map[string]DaySchedule

// DefaultWorkingHours is Monday to Friday 09:00-17:00, weekend closed.
func DefaultWorkingHours() WorkingHours {
	wh := make(WorkingHours, len(Weekdays))
	for i, day := range Weekdays {
		open := i >= int(time.Monday) && i <= int(time.Friday)
		wh[day] = DaySchedule{Enabled: open, Start: "09:00", End: "17:00"}
	}
	return wh
}

// Validate checks day names and, for every enabled day, that start is before end.
func (w WorkingHours) Validate() []apperrors.FieldError {
	var errs []apperrors.FieldError
	for _, day := range Weekdays {
		sched, ok := w[day]
		if !ok || !sched.Enabled {
			continue
		}
		field := "workingHours." + day
		start, err := ParseClock(sched.Start)
		if err != nil {
			errs = append(errs, apperrors.FieldError{Field: field + ".start", Message: "must be in HH:MM format"})
			continue
		}
		end, err := ParseClock(sched.End)
		if err != nil {
			errs = append(errs, apperrors.FieldError{Field: field + ".end", Message: "must be in HH:MM format"})
			continue
		}
		if start >= end {
			errs = append(errs, apperrors.FieldError{Field: field, Message: "start must be before end"})
		}
	}
	unknown := make([]string, 0)
	for day := range w {
		if !isWeekday(day) {
			unknown = append(unknown, day)
		}
	}
	sort.Strings(unknown)
	for _, day := range unknown {
		errs = append(errs, apperrors.FieldError{Field: "workingHours." + day, Message: "unknown weekday"})
	}
	return errs
}

// Value stores WorkingHours as JSONB.
func (w WorkingHours) Value() (driver.Value, error) {
	if w == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(w)
}

// Scan reads WorkingHours from a JSONB column.
func (w *WorkingHours) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*w = WorkingHours{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("working hours: unsupported type %T", src)
	}
	return json.Unmarshal(raw, w)
}

func isWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

type Service struct {
	ID           string       `json:"id" bson:"_id" db:"id"`
	ProviderID   string       `json:"providerId" bson:"providerId" db:"provider_id"`
	Name         string       `json:"name" bson:"name" db:"name"`
	Description  string       `json:"description" bson:"description" db:"description"`
	Price        float64      `json:"price" bson:"price" db:"price"`
	Duration     int          `json:"duration" bson:"duration" db:"duration"` // minutes
	Category     string       `json:"category" bson:"category" db:"category"`
	IsActive     bool         `json:"isActive" bson:"isActive" db:"is_active"`
	WorkingHours WorkingHours `json:"workingHours" bson:"workingHours" db:"working_hours"`
	Timestamps   `bson:",inline"`
}

// SlotLength is the service duration as a time.Duration.
func (s *Service) SlotLength() time.Duration {
	return time.Duration(s.Duration) * time.Minute
}

// Summary is the subset of a service embedded in booking responses.
func (s *Service) Summary() *ServiceSummary {
	return &ServiceSummary{
		ID:       s.ID,
		Name:     s.Name,
		Price:    s.Price,
		Duration: s.Duration,
		Category: s.Category,
	}
}

type ServiceSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Duration int     `json:"duration"`
	Category string  `json:"category"`
}

// Service sort orders accepted by ServiceFilter.SortBy.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortName      = "name"
	SortPopular   = "popular"
)

type ServiceFilter struct {
	ProviderID string
	Category   string
	Search     string
	Active     *bool
	MinPrice   *float64
	MaxPrice   *float64
	SortBy     string
}

// CategoryCount is one row of the public category listing.
type CategoryCount struct {
	Name  string `json:"name" bson:"_id" db:"category"`
	Count int    `json:"count" bson:"count" db:"count"`
}

// ListServicesQuery is the public catalog listing.
type ListServicesQuery struct {
	Category string `form:"category"`
	Search   string `form:"search"`
	IsActive *bool  `form:"isActive"`
}

// SearchServicesQuery searches active services.
type SearchServicesQuery struct {
	Q        string   `form:"q" json:"search,omitempty"`
	Category string   `form:"category" json:"category,omitempty"`
	MinPrice *float64 `form:"minPrice" json:"minPrice,omitempty" binding:"omitempty,gte=0"`
	MaxPrice *float64 `form:"maxPrice" json:"maxPrice,omitempty" binding:"omitempty,gte=0"`
	SortBy   string   `form:"sortBy" json:"sortBy,omitempty" binding:"omitempty,oneof=newest price_asc price_desc name popular"`
}

type CreateServiceRequest struct {
	Name         string       `json:"name" binding:"required,min=2,max=120"`
	Description  string       `json:"description" binding:"max=2000"`
	Price        float64      `json:"price" binding:"gte=0"`
	Duration     int          `json:"duration" binding:"required,gt=0,lte=1440"`
	Category     string       `json:"category" binding:"required,max=60"`
	IsActive     *bool        `json:"isActive"`
	WorkingHours WorkingHours `json:"workingHours" binding:"omitempty,dive"`
}

type UpdateServiceRequest struct {
	Name         *string      `json:"name" binding:"omitempty,min=2,max=120"`
	Description  *string      `json:"description" binding:"omitempty,max=2000"`
	Price        *float64     `json:"price" binding:"omitempty,gte=0"`
	Duration     *int         `json:"duration" binding:"omitempty,gt=0,lte=1440"`
	Category     *string      `json:"category" binding:"omitempty,max=60"`
	IsActive     *bool        `json:"isActive"`
	WorkingHours WorkingHours `json:"workingHours" binding:"omitempty,dive"`
}

// Apply copies the set fields of r onto s.
func (r *UpdateServiceRequest) Apply(s *Service) {
	if r.Name != nil {
		s.Name = *r.Name
	}
	if r.Description != nil {
		s.Description = *r.Description
	}
	if r.Price != nil {
		s.Price = *r.Price
	}
	if r.Duration != nil {
		s.Duration = *r.Duration
	}
	if r.Category != nil {
		s.Category = *r.Category
	}
	if r.IsActive != nil {
		s.IsActive = *r.IsActive
	}
	if r.WorkingHours != nil {
		s.WorkingHours = r.WorkingHours
	}
}
