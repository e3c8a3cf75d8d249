package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/models"
	"swapstation/backend/services/reservation-service/internal/notify"
	"swapstation/backend/services/reservation-service/internal/quota"
	"swapstation/backend/services/reservation-service/internal/stations"
)

type fakeVehicles struct {
	byDriver map[int64][]models.Vehicle
	err      error
}

func (f *fakeVehicles) ListByDriver(_ context.Context, driverID int64) ([]models.Vehicle, error) {
	return f.byDriver[driverID], f.err
}

type fakeBookings struct {
	mu      sync.Mutex
	created []models.Booking
	err     error
}

func (f *fakeBookings) CreateBookings(_ context.Context, bookings []models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, bookings...)
	return nil
}

func (f *fakeBookings) ListByDriver(_ context.Context, driverID int64, _ int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.created {
		if b.DriverID == driverID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	byID    map[int64]models.Station
	listErr error
}

func (f *fakeFetcher) ListStations(context.Context) ([]models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Station, 0, len(f.byID))
	for _, st := range f.byID {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeFetcher) NearbyStations(ctx context.Context, _, _, _ float64) ([]models.Station, error) {
	return f.ListStations(ctx)
}

func (f *fakeFetcher) GetStation(_ context.Context, id int64) (models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.byID[id]
	if !ok {
		return models.Station{}, errors.New("station not found")
	}
	return st, nil
}

func (f *fakeFetcher) setAvailable(id int64, available int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.byID[id]
	st.Batteries = []models.BatteryStock{{BatteryType: "LITHIUM_ION", Available: available}}
	f.byID[id] = st
}

type fixture struct {
	svc      *ReservationService
	fetcher  *fakeFetcher
	bookings *fakeBookings
	store    *quota.MemoryStore
	recorder *notify.Recorder
	registry *prometheus.Registry
	sess     Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fetcher := &fakeFetcher{byID: map[int64]models.Station{
		10: {ID: 10, Name: "Central", Batteries: []models.BatteryStock{{BatteryType: "LITHIUM_ION", Available: 5}}},
		20: {ID: 20, Name: "Harbour", Batteries: []models.BatteryStock{{BatteryType: "LITHIUM_ION", Available: 4}}},
	}}
	vehicles := &fakeVehicles{byDriver: map[int64][]models.Vehicle{
		7: {
			{ID: 1, DriverID: 7, VehicleType: "Scooter", BatteryType: "LITHIUM_ION", BatteryCount: 2},
			{ID: 2, DriverID: 7, VehicleType: "Van", BatteryType: "LITHIUM_ION", BatteryCount: 4},
		},
	}}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	recorder := &notify.Recorder{}
	store := quota.NewMemoryStore()
	bookings := &fakeBookings{}

	svc := NewReservationService(Deps{
		Vehicles:  vehicles,
		Bookings:  bookings,
		Store:     store,
		Directory: stations.NewDirectory(stations.Options{Fetcher: fetcher, Metrics: m}),
		Notifiers: func(string) notify.Notifier { return recorder },
		Metrics:   m,
	})

	return &fixture{
		svc:      svc,
		fetcher:  fetcher,
		bookings: bookings,
		store:    store,
		recorder: recorder,
		registry: reg,
		sess:     Session{Key: "sess-1", DriverID: 7},
	}
}

func (f *fixture) search(t *testing.T) {
	t.Helper()
	_, err := f.svc.SearchStations(context.Background(), f.sess, stations.Query{})
	require.NoError(t, err)
}

func (f *fixture) reserve(t *testing.T, vehicleID, stationID int64, delta int) quota.Outcome {
	t.Helper()
	out, err := f.svc.Increment(context.Background(), f.sess, quota.IncrementRequest{
		VehicleID:   vehicleID,
		StationID:   stationID,
		BatteryType: "LITHIUM_ION",
		Delta:       delta,
	})
	require.NoError(t, err)
	return out
}

func TestEnsureLineRejectsForeignVehicle(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EnsureLine(context.Background(), f.sess, 99)
	require.ErrorIs(t, err, ErrVehicleNotFound)

	line, err := f.svc.EnsureLine(context.Background(), f.sess, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, line.Qty)
	assert.Equal(t, "LITHIUM_ION", line.BatteryType)
}

func TestIncrementUsesSearchSnapshot(t *testing.T) {
	f := newFixture(t)

	out := f.reserve(t, 1, 10, 1)
	assert.False(t, out.Applied, "no search yet")
	assert.Equal(t, quota.ReasonNoStation, out.Reason)

	f.search(t)
	out = f.reserve(t, 1, 10, 2)
	require.True(t, out.Applied)
	assert.Equal(t, 2, out.Line.Qty)

	out = f.reserve(t, 1, 10, 1)
	assert.False(t, out.Applied)
	assert.Equal(t, quota.ReasonVehicleCapacity, out.Reason)

	last, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, models.NotificationError, last.Kind)

	expected := `
# HELP reservation_operations_total Reservation operations by kind and outcome
# TYPE reservation_operations_total counter
reservation_operations_total{operation="increment",outcome="applied"} 1
reservation_operations_total{operation="increment",outcome="exceeds vehicle capacity"} 1
reservation_operations_total{operation="increment",outcome="no station selected"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "reservation_operations_total"))
}

func TestDecrementAndRemove(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.reserve(t, 2, 10, 3)

	out, err := f.svc.Decrement(context.Background(), f.sess, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Line.Qty)
	assert.Nil(t, out.Line.Station)

	require.NoError(t, f.svc.RemoveLine(context.Background(), f.sess, 2))
	res, err := f.svc.Reservations(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSubmitBookingGroupsPerStation(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.reserve(t, 1, 10, 2)
	f.reserve(t, 2, 20, 3)

	created, err := f.svc.SubmitBooking(context.Background(), f.sess)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, int64(10), created[0].StationID)
	assert.Equal(t, "Central", created[0].StationName)
	assert.Equal(t, 2, created[0].TotalQty())
	assert.Equal(t, int64(20), created[1].StationID)
	assert.Equal(t, 3, created[1].TotalQty())
	for _, b := range created {
		assert.Equal(t, models.BookingStatusPending, b.Status)
		assert.Equal(t, int64(7), b.DriverID)
		assert.NotEmpty(t, b.ID)
	}

	res, err := f.svc.Reservations(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Empty(t, res, "selection cleared after booking")

	last, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, models.NotificationSuccess, last.Kind)

	listed, err := f.svc.Bookings(context.Background(), f.sess, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestSubmitBookingDetectsStaleStock(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.reserve(t, 2, 10, 4)

	f.fetcher.setAvailable(10, 3)

	_, err := f.svc.SubmitBooking(context.Background(), f.sess)
	require.ErrorIs(t, err, ErrStaleReservation)
	assert.Empty(t, f.bookings.created)

	res, err := f.svc.Reservations(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, 4, res[2].Qty, "selection kept for adjustment")

	last, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "Reservation out of date", last.Title)

	// Snapshot picked up the refreshed stock, so the engine now caps at 3.
	out, err := f.svc.Decrement(context.Background(), f.sess, 2, 4)
	require.NoError(t, err)
	require.True(t, out.Applied)
	out = f.reserve(t, 2, 10, 4)
	assert.Equal(t, quota.ReasonStationStock, out.Reason)
}

func TestSubmitBookingWithoutReservations(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EnsureLine(context.Background(), f.sess, 1)
	require.NoError(t, err)

	_, err = f.svc.SubmitBooking(context.Background(), f.sess)
	require.ErrorIs(t, err, ErrNothingToBook)
}

func TestSubmitBookingKeepsSelectionOnPersistFailure(t *testing.T) {
	f := newFixture(t)
	f.search(t)
	f.reserve(t, 1, 10, 1)
	f.bookings.err = errors.New("db down")

	_, err := f.svc.SubmitBooking(context.Background(), f.sess)
	require.Error(t, err)

	res, err := f.svc.Reservations(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res[1].Qty)
}

func TestSearchFailureNotifiesWarning(t *testing.T) {
	f := newFixture(t)
	f.fetcher.listErr = errors.New("timeout")

	_, err := f.svc.SearchStations(context.Background(), f.sess, stations.Query{})
	require.ErrorIs(t, err, stations.ErrDirectoryUnavailable)

	last, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, models.NotificationWarning, last.Kind)
}

func TestConcurrentIncrementsRespectStock(t *testing.T) {
	f := newFixture(t)
	f.search(t)

	// Two vehicles racing for Harbour's 4 batteries: the sum may never exceed stock.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		vehicleID := int64(1 + i%2)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Increment(context.Background(), f.sess, quota.IncrementRequest{
				VehicleID:   vehicleID,
				StationID:   20,
				BatteryType: "LITHIUM_ION",
				Delta:       1,
			})
		}()
	}
	wg.Wait()

	res, err := f.svc.Reservations(context.Background(), f.sess)
	require.NoError(t, err)
	total := 0
	for _, line := range res {
		total += line.Qty
		assert.LessOrEqual(t, line.Qty, line.Vehicle.BatteryCount)
	}
	assert.LessOrEqual(t, total, 4)
	assert.Empty(t, f.svc.locks.locks, "session locks released")
}

func TestIncrementMultiUnitDeltas(t *testing.T) {
	f := newFixture(t)
	f.fetcher.setAvailable(20, 2)
	f.search(t)

	tests := []struct {
		name      string
		vehicleID int64
		delta     int
		applied   bool
		reason    quota.Reason
		qty       int
	}{
		{name: "zero counts as one", vehicleID: 2, delta: 0, applied: true, qty: 1},
		{name: "beyond station stock", vehicleID: 2, delta: 2, reason: quota.ReasonStationStock, qty: 1},
		{name: "beyond vehicle capacity", vehicleID: 2, delta: 4, reason: quota.ReasonVehicleCapacity, qty: 1},
		{name: "max int", vehicleID: 2, delta: math.MaxInt, reason: quota.ReasonVehicleCapacity, qty: 1},
		{name: "aggregate ceiling for second vehicle", vehicleID: 1, delta: 2, reason: quota.ReasonAggregateQuota, qty: 0},
		{name: "fills remaining stock", vehicleID: 2, delta: 1, applied: true, qty: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := f.reserve(t, tc.vehicleID, 20, tc.delta)
			assert.Equal(t, tc.applied, out.Applied)
			assert.Equal(t, tc.reason, out.Reason)

			res, err := f.svc.Reservations(context.Background(), f.sess)
			require.NoError(t, err)
			assert.Equal(t, tc.qty, res[tc.vehicleID].Qty)
		})
	}
}
