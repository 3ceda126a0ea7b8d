// Package catalog serves the public service catalogue, the availability
// query and the provider's service management.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/slotbook/internal/availability"
	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
	"github.com/jwalitptl/slotbook/pkg/auth"
	apperrors "github.com/jwalitptl/slotbook/pkg/errors"
	"github.com/jwalitptl/slotbook/pkg/metrics"
	"github.com/jwalitptl/slotbook/pkg/validator"
)

const allCategories = "all"

// CacheConfig controls the in-process service cache. A zero TTL disables it.
type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

type Service struct {
	services repository.ServiceRepository
	bookings repository.BookingRepository
	cache    *cache.Cache
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	validate *validator.Validator
}

func NewService(services repository.ServiceRepository, bookings repository.BookingRepository, m *metrics.Metrics, logger zerolog.Logger, cacheCfg CacheConfig) *Service {
	s := &Service{
		services: services,
		bookings: bookings,
		metrics:  m,
		logger:   logger.With().Str("component", "catalog").Logger(),
		validate: validator.Default(),
	}
	if cacheCfg.TTL > 0 {
		cleanup := cacheCfg.CleanupInterval
		if cleanup <= 0 {
			cleanup = 2 * cacheCfg.TTL
		}
		s.cache = cache.New(cacheCfg.TTL, cleanup)
	}
	return s
}

// AvailableSlots lists the free slots of a service on date (YYYY-MM-DD).
// An inactive service or a closed day yields an empty list, not an error.
func (s *Service) AvailableSlots(ctx context.Context, serviceID, date string) ([]model.Slot, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		s.metrics.SlotQueries.WithLabelValues("invalid").Inc()
		return nil, apperrors.NewValidation(apperrors.FieldError{
			Field:   "date",
			Message: "must be a valid date in YYYY-MM-DD format",
		})
	}

	svc, err := s.cachedService(ctx, serviceID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			s.metrics.SlotQueries.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}
	if !svc.IsActive {
		s.metrics.SlotQueries.WithLabelValues("inactive").Inc()
		return []model.Slot{}, nil
	}
	if _, _, open := availability.Window(svc, day); !open {
		s.metrics.SlotQueries.WithLabelValues("closed").Inc()
		return []model.Slot{}, nil
	}

	from, to := model.DayBounds(day)
	booked, err := s.bookings.List(ctx, &model.BookingFilter{
		ServiceID: svc.ID,
		Statuses:  model.NonCancelledStatuses,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	slots := availability.Calculate(svc, day, booked)
	s.metrics.SlotQueries.WithLabelValues("ok").Inc()
	s.logger.Debug().
		Str("service_id", svc.ID).
		Str("date", date).
		Int("booked", len(booked)).
		Int("available", len(slots)).
		Msg("slots computed")
	return slots, nil
}

// Get returns an active service. Inactive services are reported as missing.
func (s *Service) Get(ctx context.Context, id string) (*model.Service, error) {
	svc, err := s.cachedService(ctx, id)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, apperrors.NewNotFound("service", nil)
	}
	return svc, nil
}

// List is the public catalogue. Only active services are listed unless the
// query asks otherwise.
func (s *Service) List(ctx context.Context, q *model.ListServicesQuery) ([]*model.Service, error) {
	active := true
	filter := &model.ServiceFilter{Active: &active, Search: strings.TrimSpace(q.Search)}
	if q.IsActive != nil {
		filter.Active = q.IsActive
	}
	if q.Category != "" && !strings.EqualFold(q.Category, allCategories) {
		filter.Category = q.Category
	}
	list, err := s.services.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return list, nil
}

// Search filters active services by text, category and price.
func (s *Service) Search(ctx context.Context, q *model.SearchServicesQuery) ([]*model.Service, error) {
	if err := s.validate.Validate(q); err != nil {
		return nil, err
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, apperrors.NewValidation(apperrors.FieldError{Field: "minPrice", Message: "must not exceed maxPrice"})
	}

	active := true
	filter := &model.ServiceFilter{
		Active:   &active,
		Search:   strings.TrimSpace(q.Q),
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		SortBy:   q.SortBy,
	}
	if q.Category != "" && !strings.EqualFold(q.Category, allCategories) {
		filter.Category = q.Category
	}
	list, err := s.services.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if q.SortBy == model.SortPopular {
		if err := s.sortByPopularity(ctx, list); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// sortByPopularity orders services by their total booking count, keeping
// the store's order between equals.
func (s *Service) sortByPopularity(ctx context.Context, list []*model.Service) error {
	counts := make(map[string]int, len(list))
	for _, svc := range list {
		n, err := s.bookings.Count(ctx, &model.BookingFilter{ServiceID: svc.ID})
		if err != nil {
			return apperrors.Internal(err)
		}
		counts[svc.ID] = n
	}
	sort.SliceStable(list, func(i, j int) bool { return counts[list[i].ID] > counts[list[j].ID] })
	return nil
}

// Categories returns the distinct categories of active services, sorted.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	counts, err := s.services.Categories(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	names := make([]string, 0, len(counts))
	for _, c := range counts {
		names = append(names, c.Name)
	}
	return names, nil
}

// ListForProvider returns every service the provider owns, active or not.
func (s *Service) ListForProvider(ctx context.Context, providerID string) ([]*model.Service, error) {
	list, err := s.services.List(ctx, &model.ServiceFilter{ProviderID: providerID})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return list, nil
}

func (s *Service) Create(ctx context.Context, p auth.Principal, req *model.CreateServiceRequest) (*model.Service, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	hours := req.WorkingHours
	if hours == nil {
		hours = model.DefaultWorkingHours()
	}
	if errs := hours.Validate(); len(errs) > 0 {
		return nil, apperrors.NewValidation(errs...)
	}

	svc := &model.Service{
		ProviderID:   p.ID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Price:        req.Price,
		Duration:     req.Duration,
		Category:     strings.TrimSpace(req.Category),
		IsActive:     true,
		WorkingHours: hours,
	}
	if req.IsActive != nil {
		svc.IsActive = *req.IsActive
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.logger.Info().
		Str("service_id", svc.ID).
		Str("provider_id", p.ID).
		Str("name", svc.Name).
		Msg("service created")
	return svc, nil
}

// Update edits a provider's own service. Existing bookings keep the
// duration they were made with.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, req *model.UpdateServiceRequest) (*model.Service, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}
	svc, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}

	req.Apply(svc)
	if errs := svc.WorkingHours.Validate(); len(errs) > 0 {
		return nil, apperrors.NewValidation(errs...)
	}
	if err := s.services.Update(ctx, svc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("service", err)
		}
		return nil, apperrors.Internal(err)
	}
	s.invalidate(id)

	s.logger.Info().Str("service_id", id).Str("provider_id", p.ID).Msg("service updated")
	return svc, nil
}

// Delete removes a provider's own service unless it still has pending,
// confirmed or in-progress bookings.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	if _, err := s.owned(ctx, p, id); err != nil {
		return err
	}
	active, err := s.bookings.Count(ctx, &model.BookingFilter{ServiceID: id, Statuses: model.ActiveStatuses})
	if err != nil {
		return apperrors.Internal(err)
	}
	if active > 0 {
		return apperrors.NewBadRequest(fmt.Sprintf("Cannot delete service with %d active booking(s)", active), nil)
	}
	if err := s.services.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("service", err)
		}
		return apperrors.Internal(err)
	}
	s.invalidate(id)

	s.logger.Info().Str("service_id", id).Str("provider_id", p.ID).Msg("service deleted")
	return nil
}

// owned loads a service from the store, bypassing the cache, and hides
// services of other providers.
func (s *Service) owned(ctx context.Context, p auth.Principal, id string) (*model.Service, error) {
	svc, err := s.services.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("service", err)
		}
		return nil, apperrors.Internal(err)
	}
	if svc.ProviderID != p.ID {
		return nil, apperrors.NewNotFound("service", nil)
	}
	return svc, nil
}

func (s *Service) cachedService(ctx context.Context, id string) (*model.Service, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey(id)); ok {
			return v.(*model.Service), nil
		}
	}
	svc, err := s.services.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("service", err)
		}
		return nil, apperrors.Internal(err)
	}
	if s.cache != nil {
		s.cache.SetDefault(cacheKey(id), svc)
	}
	return svc, nil
}

func (s *Service) invalidate(id string) {
	if s.cache != nil {
		s.cache.Delete(cacheKey(id))
	}
}

func cacheKey(id string) string {
	return "service:" + id
}
