// Package memory keeps services and bookings in process memory. It backs the
// "memory" database driver and the service-layer tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
)

// Store holds both collections behind one lock so that a booking insert can
// check its service's bookings atomically.
type Store struct {
	mu       sync.RWMutex
	services map[string]*model.Service
	bookings map[string]*model.Booking
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		services: make(map[string]*model.Service),
		bookings: make(map[string]*model.Booking),
		now:      time.Now,
	}
}

func (s *Store) Services() repository.ServiceRepository { return &serviceRepository{s} }

func (s *Store) Bookings() repository.BookingRepository { return &bookingRepository{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type serviceRepository struct{ s *Store }

func (r *serviceRepository) Create(ctx context.Context, svc *model.Service) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = model.NewID()
	}
	svc.Touch(r.s.now())
	r.s.services[svc.ID] = cloneService(svc)
	return nil
}

func (r *serviceRepository) Get(ctx context.Context, id string) (*model.Service, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	svc, ok := r.s.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneService(svc), nil
}

func (r *serviceRepository) GetMany(ctx context.Context, ids []string) (map[string]*model.Service, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]*model.Service, len(ids))
	for _, id := range ids {
		if svc, ok := r.s.services[id]; ok {
			out[id] = cloneService(svc)
		}
	}
	return out, nil
}

func (r *serviceRepository) Update(ctx context.Context, svc *model.Service) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.services[svc.ID]
	if !ok {
		return repository.ErrNotFound
	}
	svc.CreatedAt = existing.CreatedAt
	svc.Touch(r.s.now())
	r.s.services[svc.ID] = cloneService(svc)
	return nil
}

func (r *serviceRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.services[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.services, id)
	return nil
}

func (r *serviceRepository) List(ctx context.Context, filter *model.ServiceFilter) ([]*model.Service, error) {
	if filter == nil {
		filter = &model.ServiceFilter{}
	}
	r.s.mu.RLock()
	out := make([]*model.Service, 0, len(r.s.services))
	for _, svc := range r.s.services {
		if matchService(filter, svc) {
			out = append(out, cloneService(svc))
		}
	}
	r.s.mu.RUnlock()

	sortServices(out, filter.SortBy)
	return out, nil
}

func (r *serviceRepository) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	r.s.mu.RLock()
	counts := make(map[string]int)
	for _, svc := range r.s.services {
		if svc.IsActive && svc.Category != "" {
			counts[svc.Category]++
		}
	}
	r.s.mu.RUnlock()

	out := make([]model.CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func matchService(f *model.ServiceFilter, svc *model.Service) bool {
	if f.ProviderID != "" && svc.ProviderID != f.ProviderID {
		return false
	}
	if f.Category != "" && !strings.EqualFold(svc.Category, f.Category) {
		return false
	}
	if f.Active != nil && svc.IsActive != *f.Active {
		return false
	}
	if f.MinPrice != nil && svc.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && svc.Price > *f.MaxPrice {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(svc.Name), q) &&
			!strings.Contains(strings.ToLower(svc.Description), q) &&
			!strings.Contains(strings.ToLower(svc.Category), q) {
			return false
		}
	}
	return true
}

func sortServices(list []*model.Service, sortBy string) {
	var less func(a, b *model.Service) bool
	switch sortBy {
	case model.SortPriceAsc:
		less = func(a, b *model.Service) bool { return a.Price < b.Price }
	case model.SortPriceDesc:
		less = func(a, b *model.Service) bool { return a.Price > b.Price }
	case model.SortName:
		less = func(a, b *model.Service) bool { return a.Name < b.Name }
	default:
		less = func(a, b *model.Service) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
}

func cloneService(svc *model.Service) *model.Service {
	c := *svc
	if svc.WorkingHours != nil {
		c.WorkingHours = make(model.WorkingHours, len(svc.WorkingHours))
		for k, v := range svc.WorkingHours {
			c.WorkingHours[k] = v
		}
	}
	return &c
}

type bookingRepository struct{ s *Store }

func (r *bookingRepository) Create(ctx context.Context, b *model.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.bookings {
		if existing.ServiceID == b.ServiceID && existing.Blocks(b.StartTime, b.EndTime) {
			return repository.ErrConflict
		}
	}
	if b.ID == "" {
		b.ID = model.NewID()
	}
	b.Touch(r.s.now())
	r.s.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id string) (*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (r *bookingRepository) FindOverlapping(ctx context.Context, serviceID string, start, end time.Time) ([]*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Booking
	for _, b := range r.s.bookings {
		if b.ServiceID == serviceID && b.Blocks(start, end) {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *bookingRepository) List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, error) {
	if filter == nil {
		filter = &model.BookingFilter{}
	}
	r.s.mu.RLock()
	out := make([]*model.Booking, 0)
	for _, b := range r.s.bookings {
		if filter.Match(b) {
			out = append(out, cloneBooking(b))
		}
	}
	r.s.mu.RUnlock()

	if filter.NewestFirst {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *bookingRepository) Count(ctx context.Context, filter *model.BookingFilter) (int, error) {
	if filter == nil {
		filter = &model.BookingFilter{}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, b := range r.s.bookings {
		if filter.Match(b) {
			n++
		}
	}
	return n, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id string, status model.BookingStatus, notes *string) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.Status = status
	if notes != nil {
		b.Notes = *notes
	}
	b.Touch(r.s.now())
	return cloneBooking(b), nil
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	c.Service = nil
	return &c
}
