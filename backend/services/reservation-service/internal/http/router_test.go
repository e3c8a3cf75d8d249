package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/http/handlers"
	"swapstation/backend/services/reservation-service/internal/http/middleware"
	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/models"
	"swapstation/backend/services/reservation-service/internal/quota"
	"swapstation/backend/services/reservation-service/internal/service"
	"swapstation/backend/services/reservation-service/internal/stations"
)

const secret = "router-secret"

type stubVehicles struct{}

func (stubVehicles) ListByDriver(_ context.Context, driverID int64) ([]models.Vehicle, error) {
	if driverID != 7 {
		return nil, nil
	}
	return []models.Vehicle{
		{ID: 1, DriverID: 7, VehicleType: "Scooter", BatteryType: "LITHIUM_ION", BatteryCount: 2},
		{ID: 2, DriverID: 7, VehicleType: "Van", BatteryType: "LITHIUM_ION", BatteryCount: 4},
	}, nil
}

type stubBookings struct{ created []models.Booking }

func (s *stubBookings) CreateBookings(_ context.Context, b []models.Booking) error {
	s.created = append(s.created, b...)
	return nil
}

func (s *stubBookings) ListByDriver(context.Context, int64, int) ([]models.Booking, error) {
	return s.created, nil
}

type stubFetcher struct {
	stations []models.Station
	err      error
}

func (f *stubFetcher) ListStations(context.Context) ([]models.Station, error) {
	return f.stations, f.err
}

func (f *stubFetcher) NearbyStations(ctx context.Context, _, _, _ float64) ([]models.Station, error) {
	return f.ListStations(ctx)
}

func (f *stubFetcher) GetStation(_ context.Context, id int64) (models.Station, error) {
	for _, st := range f.stations {
		if st.ID == id {
			return st, nil
		}
	}
	return models.Station{}, errors.New("not found")
}

type testAPI struct {
	handler http.Handler
	fetcher *stubFetcher
	token   string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	fetcher := &stubFetcher{stations: []models.Station{
		{ID: 10, Name: "Central", Batteries: []models.BatteryStock{{BatteryType: "LITHIUM_ION", Available: 3}}},
	}}
	svc := service.NewReservationService(service.Deps{
		Vehicles:  stubVehicles{},
		Bookings:  &stubBookings{},
		Store:     quota.NewMemoryStore(),
		Directory: stations.NewDirectory(stations.Options{Fetcher: fetcher, Metrics: m}),
		Metrics:   m,
		Logger:    logger,
	})

	router := NewRouter(RouterDeps{
		Reservations: handlers.NewReservationsHandlers(svc, logger),
		Stations:     handlers.NewStationsHandlers(svc, logger),
		Vehicles:     handlers.NewVehiclesHandlers(svc, logger),
		Bookings:     handlers.NewBookingsHandlers(svc, logger),
		Health:       handlers.NewHealthHandler(nil),
	}, middleware.AuthMiddleware(secret))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 7, "sid": "tab"}).SignedString([]byte(secret))
	require.NoError(t, err)

	return &testAPI{handler: router, fetcher: fetcher, token: token}
}

func (a *testAPI) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Authorization", "Bearer "+a.token)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestReservationFlow(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/vehicles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Vehicle](t, rr), 2)

	rr = api.do(t, http.MethodGet, "/api/stations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[stations.SearchResult](t, rr)
	assert.Len(t, res.Stations, 1)

	rr = api.do(t, http.MethodPost, "/api/reservations/1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodPost, "/api/reservations/1/increment", `{"stationId":10,"batteryType":"LITHIUM_ION","delta":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode[quota.Outcome](t, rr)
	assert.True(t, out.Applied)
	assert.Equal(t, 2, out.Line.Qty)

	rr = api.do(t, http.MethodPost, "/api/reservations/2/increment?strict=true", `{"stationId":10,"batteryType":"LITHIUM_ION","delta":2}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	out = decode[quota.Outcome](t, rr)
	assert.Equal(t, quota.ReasonAggregateQuota, out.Reason)
	assert.Equal(t, 1, out.Limit)

	rr = api.do(t, http.MethodPost, "/api/reservations/2/increment", `{"stationId":10,"batteryType":"LITHIUM_ION","delta":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[quota.Outcome](t, rr).Applied)

	rr = api.do(t, http.MethodPost, "/api/reservations/1/decrement", `{"delta":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[quota.Outcome](t, rr).Line.Qty)

	rr = api.do(t, http.MethodGet, "/api/reservations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	lines := decode[map[string]models.ReservationLine](t, rr)
	require.Contains(t, lines, "1")
	assert.Equal(t, "Central", lines["1"].Station.Name)

	rr = api.do(t, http.MethodPost, "/api/bookings", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	bookings := decode[[]models.Booking](t, rr)
	require.Len(t, bookings, 1)
	assert.Equal(t, 1, bookings[0].TotalQty())

	rr = api.do(t, http.MethodPost, "/api/bookings", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodDelete, "/api/reservations/1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRouterErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"unknown vehicle", http.MethodPost, "/api/reservations/99", "", http.StatusNotFound},
		{"bad vehicle id", http.MethodPost, "/api/reservations/abc/increment", "{}", http.StatusBadRequest},
		{"bad payload", http.MethodPost, "/api/reservations/1/increment", `{"stationId":"x"}`, http.StatusBadRequest},
		{"negative delta", http.MethodPost, "/api/reservations/1/decrement", `{"delta":-1}`, http.StatusBadRequest},
		{"oversized increment", http.MethodPost, "/api/reservations/1/increment", `{"stationId":10,"batteryType":"LITHIUM_ION","delta":401}`, http.StatusBadRequest},
		{"max int increment", http.MethodPost, "/api/reservations/1/increment", `{"stationId":10,"batteryType":"LITHIUM_ION","delta":9223372036854775807}`, http.StatusBadRequest},
		{"oversized decrement", http.MethodPost, "/api/reservations/1/decrement", `{"delta":1000}`, http.StatusBadRequest},
		{"bad latitude", http.MethodGet, "/api/stations?lat=100&lng=1", "", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/reservations/1", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestStationSearchUpstreamFailure(t *testing.T) {
	api := newTestAPI(t)
	api.fetcher.err = errors.New("connection refused")

	rr := api.do(t, http.MethodGet, "/api/stations?lat=48.85&lng=2.35&radiusKm=5", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestUnauthenticatedRequests(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/reservations", nil)
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	api.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
