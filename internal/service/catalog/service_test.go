package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
	"github.com/jwalitptl/slotbook/internal/repository/memory"
	"github.com/jwalitptl/slotbook/pkg/auth"
	apperrors "github.com/jwalitptl/slotbook/pkg/errors"
	"github.com/jwalitptl/slotbook/pkg/metrics"
)

var (
	provider = auth.Principal{ID: "prov-1", Role: auth.RoleProvider}
	rival    = auth.Principal{ID: "prov-2", Role: auth.RoleProvider}
	monday   = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *Service
	store   *memory.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cacheCfg CacheConfig) *fixture {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewNop()
	return &fixture{
		svc:     NewService(store.Services(), store.Bookings(), m, zerolog.Nop(), cacheCfg),
		store:   store,
		metrics: m,
	}
}

func (f *fixture) create(t *testing.T, req *model.CreateServiceRequest) *model.Service {
	t.Helper()
	svc, err := f.svc.Create(context.Background(), provider, req)
	require.NoError(t, err)
	return svc
}

func (f *fixture) bookAt(t *testing.T, serviceID string, start time.Time, minutes int, status model.BookingStatus) {
	t.Helper()
	require.NoError(t, f.store.Bookings().Create(context.Background(), &model.Booking{
		ServiceID:  serviceID,
		UserID:     "cust-1",
		ProviderID: provider.ID,
		StartTime:  start,
		EndTime:    start.Add(time.Duration(minutes) * time.Minute),
		Status:     status,
	}))
}

func hourly() *model.CreateServiceRequest {
	return &model.CreateServiceRequest{Name: "Haircut", Price: 25, Duration: 60, Category: "Beauty"}
}

func TestAvailableSlotsFullDay(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	svc := f.create(t, hourly())

	slots, err := f.svc.AvailableSlots(context.Background(), svc.ID, "2024-01-15")

	require.NoError(t, err)
	require.Len(t, slots, 8)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "10:00", slots[0].EndTime)
	assert.Equal(t, "16:00", slots[7].StartTime)
	assert.Equal(t, "17:00", slots[7].EndTime)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SlotQueries.WithLabelValues("ok")))
}

func TestAvailableSlotsExcludesBooked(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	svc := f.create(t, hourly())
	f.bookAt(t, svc.ID, monday.Add(9*time.Hour), 60, model.StatusConfirmed)
	f.bookAt(t, svc.ID, monday.Add(11*time.Hour), 60, model.StatusCancelled)
	f.bookAt(t, svc.ID, monday.AddDate(0, 0, 1).Add(10*time.Hour), 60, model.StatusPending)

	slots, err := f.svc.AvailableSlots(context.Background(), svc.ID, "2024-01-15")

	require.NoError(t, err)
	require.Len(t, slots, 7)
	assert.Equal(t, "10:00", slots[0].StartTime)
	assert.Equal(t, "11:00", slots[1].StartTime)
}

func TestAvailableSlotsEmptyCases(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	open := f.create(t, hourly())
	inactive := false
	closed := f.create(t, &model.CreateServiceRequest{Name: "Massage", Price: 60, Duration: 60, Category: "Wellness", IsActive: &inactive})

	slots, err := f.svc.AvailableSlots(context.Background(), open.ID, "2024-01-20")
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots, "saturday is disabled")

	slots, err = f.svc.AvailableSlots(context.Background(), closed.ID, "2024-01-15")
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots, "inactive service")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SlotQueries.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SlotQueries.WithLabelValues("inactive")))
}

func TestAvailableSlotsErrors(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	svc := f.create(t, hourly())

	for _, bad := range []string{"", "2024-1-15", "2024-02-30", "tomorrow"} {
		_, err := f.svc.AvailableSlots(context.Background(), svc.ID, bad)
		appErr, ok := apperrors.As(err)
		require.True(t, ok, bad)
		assert.Equal(t, apperrors.ErrBadRequest, appErr.Code, bad)
		assert.Equal(t, "date", appErr.Details[0].Field)
	}

	_, err := f.svc.AvailableSlots(context.Background(), "missing", "2024-01-15")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestAvailableSlotsIsIdempotent(t *testing.T) {
	f := newFixture(t, CacheConfig{TTL: time.Minute})
	svc := f.create(t, hourly())
	f.bookAt(t, svc.ID, monday.Add(13*time.Hour), 60, model.StatusPending)

	first, err := f.svc.AvailableSlots(context.Background(), svc.ID, "2024-01-15")
	require.NoError(t, err)
	second, err := f.svc.AvailableSlots(context.Background(), svc.ID, "2024-01-15")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCacheInvalidatedOnUpdate(t *testing.T) {
	f := newFixture(t, CacheConfig{TTL: time.Hour})
	svc := f.create(t, hourly())
	ctx := context.Background()

	slots, err := f.svc.AvailableSlots(ctx, svc.ID, "2024-01-15")
	require.NoError(t, err)
	require.Len(t, slots, 8)

	duration := 120
	_, err = f.svc.Update(ctx, provider, svc.ID, &model.UpdateServiceRequest{Duration: &duration})
	require.NoError(t, err)

	slots, err = f.svc.AvailableSlots(ctx, svc.ID, "2024-01-15")
	require.NoError(t, err)
	assert.Len(t, slots, 4)
}

func TestGetHidesInactive(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	active := f.create(t, hourly())
	off := false
	hidden := f.create(t, &model.CreateServiceRequest{Name: "Hidden", Duration: 30, Category: "Beauty", IsActive: &off})

	got, err := f.svc.Get(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, "Haircut", got.Name)

	_, err = f.svc.Get(context.Background(), hidden.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListSearchAndCategories(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	ctx := context.Background()
	off := false
	haircut := f.create(t, hourly())
	yoga := f.create(t, &model.CreateServiceRequest{Name: "Yoga", Price: 15, Duration: 60, Category: "Fitness"})
	f.create(t, &model.CreateServiceRequest{Name: "Spa day", Price: 120, Duration: 240, Category: "Wellness", Description: "hair and body"})
	f.create(t, &model.CreateServiceRequest{Name: "Old", Price: 5, Duration: 30, Category: "Legacy", IsActive: &off})

	list, err := f.svc.List(ctx, &model.ListServicesQuery{})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = f.svc.List(ctx, &model.ListServicesQuery{Category: "all"})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = f.svc.List(ctx, &model.ListServicesQuery{Category: "Fitness"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, yoga.ID, list[0].ID)

	list, err = f.svc.Search(ctx, &model.SearchServicesQuery{Q: "hair", SortBy: model.SortPriceAsc})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, haircut.ID, list[0].ID)

	hi := 50.0
	list, err = f.svc.Search(ctx, &model.SearchServicesQuery{MaxPrice: &hi, SortBy: model.SortName})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Haircut", list[0].Name)

	_, err = f.svc.Search(ctx, &model.SearchServicesQuery{SortBy: "random"})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	lo := 100.0
	_, err = f.svc.Search(ctx, &model.SearchServicesQuery{MinPrice: &lo, MaxPrice: &hi})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	cats, err := f.svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beauty", "Fitness", "Wellness"}, cats)
}

func TestSearchPopular(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	quiet := f.create(t, hourly())
	busy := f.create(t, &model.CreateServiceRequest{Name: "Yoga", Price: 15, Duration: 60, Category: "Fitness"})
	f.bookAt(t, busy.ID, monday.Add(9*time.Hour), 60, model.StatusPending)
	f.bookAt(t, busy.ID, monday.Add(10*time.Hour), 60, model.StatusCompleted)
	f.bookAt(t, quiet.ID, monday.Add(9*time.Hour), 60, model.StatusPending)

	list, err := f.svc.Search(context.Background(), &model.SearchServicesQuery{SortBy: model.SortPopular})

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, busy.ID, list[0].ID)
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t, CacheConfig{})

	svc := f.create(t, hourly())

	assert.Equal(t, provider.ID, svc.ProviderID)
	assert.True(t, svc.IsActive)
	assert.Equal(t, model.DefaultWorkingHours(), svc.WorkingHours)
	assert.False(t, svc.WorkingHours["saturday"].Enabled)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, provider, &model.CreateServiceRequest{Name: "X", Duration: 0, Price: -1})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
	assert.GreaterOrEqual(t, len(appErr.Details), 3)

	req := hourly()
	req.WorkingHours = model.WorkingHours{"monday": {Enabled: true, Start: "18:00", End: "09:00"}}
	_, err = f.svc.Create(ctx, provider, req)
	appErr, ok = apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "workingHours.monday", appErr.Details[0].Field)
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	ctx := context.Background()
	svc := f.create(t, hourly())
	name := "Stolen"

	_, err := f.svc.Update(ctx, rival, svc.ID, &model.UpdateServiceRequest{Name: &name})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(f.svc.Delete(ctx, rival, svc.ID), apperrors.ErrNotFound))

	name = "Premium haircut"
	updated, err := f.svc.Update(ctx, provider, svc.ID, &model.UpdateServiceRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Premium haircut", updated.Name)
	assert.Equal(t, 25.0, updated.Price)
}

func TestDeleteRefusedWithActiveBookings(t *testing.T) {
	f := newFixture(t, CacheConfig{TTL: time.Hour})
	ctx := context.Background()
	svc := f.create(t, hourly())
	f.bookAt(t, svc.ID, monday.Add(9*time.Hour), 60, model.StatusConfirmed)
	f.bookAt(t, svc.ID, monday.Add(10*time.Hour), 60, model.StatusPending)
	f.bookAt(t, svc.ID, monday.Add(11*time.Hour), 60, model.StatusCompleted)

	err := f.svc.Delete(ctx, provider, svc.ID)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
	assert.Equal(t, "Cannot delete service with 2 active booking(s)", appErr.Message)

	list, err := f.store.Bookings().List(ctx, &model.BookingFilter{ServiceID: svc.ID, Statuses: model.ActiveStatuses})
	require.NoError(t, err)
	for _, b := range list {
		_, err := f.store.Bookings().UpdateStatus(ctx, b.ID, model.StatusCancelled, nil)
		require.NoError(t, err)
	}

	_, err = f.svc.Get(ctx, svc.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, provider, svc.ID))

	_, err = f.svc.Get(ctx, svc.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound), "cache must not outlive delete")
	_, err = f.store.Services().Get(ctx, svc.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListForProvider(t *testing.T) {
	f := newFixture(t, CacheConfig{})
	off := false
	f.create(t, hourly())
	f.create(t, &model.CreateServiceRequest{Name: "Paused", Duration: 30, Category: "Beauty", IsActive: &off})
	_, err := f.svc.Create(context.Background(), rival, hourly())
	require.NoError(t, err)

	list, err := f.svc.ListForProvider(context.Background(), provider.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
