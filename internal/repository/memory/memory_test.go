package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
)

var nine = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func steppedClock() func() time.Time {
	t := nine
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newBooking(serviceID string, start time.Time, minutes int) *model.Booking {
	return &model.Booking{
		ServiceID:  serviceID,
		UserID:     "user-1",
		ProviderID: "prov-1",
		Date:       time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:  start,
		EndTime:    start.Add(time.Duration(minutes) * time.Minute),
		Status:     model.StatusPending,
	}
}

func TestServiceCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Services()

	svc := &model.Service{ProviderID: "prov-1", Name: "Haircut", Duration: 30, IsActive: true, WorkingHours: model.DefaultWorkingHours()}
	require.NoError(t, repo.Create(ctx, svc))
	require.NotEmpty(t, svc.ID)
	assert.False(t, svc.CreatedAt.IsZero())

	got, err := repo.Get(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Haircut", got.Name)

	got.WorkingHours["monday"] = model.DaySchedule{}
	again, err := repo.Get(ctx, svc.ID)
	require.NoError(t, err)
	assert.True(t, again.WorkingHours["monday"].Enabled, "stored copy must not alias")

	got.Name = "Beard trim"
	require.NoError(t, repo.Update(ctx, got))
	again, err = repo.Get(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beard trim", again.Name)

	many, err := repo.GetMany(ctx, []string{svc.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, many, 1)

	require.NoError(t, repo.Delete(ctx, svc.ID))
	_, err = repo.Get(ctx, svc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, svc.ID), repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, svc), repository.ErrNotFound)
}

func TestServiceListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.now = steppedClock()
	repo := store.Services()

	for _, svc := range []*model.Service{
		{Name: "Yoga", Category: "Fitness", Price: 15, IsActive: true},
		{Name: "Massage", Category: "Wellness", Price: 60, IsActive: true, Description: "deep tissue"},
		{Name: "Pilates", Category: "Fitness", Price: 25, IsActive: false},
		{Name: "Boxing", Category: "fitness", Price: 30, IsActive: true},
	} {
		require.NoError(t, repo.Create(ctx, svc))
	}
	active := true

	list, err := repo.List(ctx, &model.ServiceFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Boxing", list[0].Name, "newest first by default")

	list, err = repo.List(ctx, &model.ServiceFilter{Category: "FITNESS", Active: &active, SortBy: model.SortPriceDesc})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Boxing", list[0].Name)
	assert.Equal(t, "Yoga", list[1].Name)

	lo, hi := 20.0, 40.0
	list, err = repo.List(ctx, &model.ServiceFilter{MinPrice: &lo, MaxPrice: &hi, SortBy: model.SortName})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Boxing", list[0].Name)
	assert.Equal(t, "Pilates", list[1].Name)

	list, err = repo.List(ctx, &model.ServiceFilter{Search: "TISSUE"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Massage", list[0].Name)

	cats, err := repo.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.CategoryCount{
		{Name: "Fitness", Count: 1},
		{Name: "Wellness", Count: 1},
		{Name: "fitness", Count: 1},
	}, cats)
}

func TestBookingCreateRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Bookings()

	require.NoError(t, repo.Create(ctx, newBooking("svc-1", nine, 60)))

	err := repo.Create(ctx, newBooking("svc-1", nine.Add(30*time.Minute), 60))
	assert.ErrorIs(t, err, repository.ErrConflict)

	assert.NoError(t, repo.Create(ctx, newBooking("svc-1", nine.Add(time.Hour), 60)), "adjacent slot")
	assert.NoError(t, repo.Create(ctx, newBooking("svc-2", nine, 60)), "other service")
}

func TestBookingCancelFreesInterval(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Bookings()
	first := newBooking("svc-1", nine, 60)
	require.NoError(t, repo.Create(ctx, first))

	notes := "customer called"
	updated, err := repo.UpdateStatus(ctx, first.ID, model.StatusCancelled, &notes)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, updated.Status)
	assert.Equal(t, notes, updated.Notes)

	overlapping, err := repo.FindOverlapping(ctx, "svc-1", nine, nine.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, overlapping)
	assert.NoError(t, repo.Create(ctx, newBooking("svc-1", nine, 60)))

	_, err = repo.UpdateStatus(ctx, "missing", model.StatusConfirmed, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookingListAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.now = steppedClock()
	repo := store.Bookings()

	late := newBooking("svc-1", nine.Add(3*time.Hour), 30)
	early := newBooking("svc-1", nine, 30)
	tomorrow := newBooking("svc-1", nine.AddDate(0, 0, 1), 30)
	other := newBooking("svc-2", nine, 30)
	other.UserID = "user-2"
	for _, b := range []*model.Booking{late, early, tomorrow, other} {
		require.NoError(t, repo.Create(ctx, b))
	}
	_, err := repo.UpdateStatus(ctx, late.ID, model.StatusCompleted, nil)
	require.NoError(t, err)

	dayStart, dayEnd := model.DayBounds(nine)
	day, err := repo.List(ctx, &model.BookingFilter{ServiceID: "svc-1", From: dayStart, To: dayEnd})
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, late.ID, day[0].ID, "latest start first")

	mine, err := repo.List(ctx, &model.BookingFilter{UserID: "user-1", NewestFirst: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, tomorrow.ID, mine[0].ID)
	assert.Equal(t, early.ID, mine[1].ID)

	n, err := repo.Count(ctx, &model.BookingFilter{ProviderID: "prov-1", Statuses: []model.BookingStatus{model.StatusCompleted}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBookingCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Bookings()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			start := nine.Add(time.Duration(offset%4) * 15 * time.Minute)
			if repo.Create(ctx, newBooking("svc-1", start, 60)) == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}
