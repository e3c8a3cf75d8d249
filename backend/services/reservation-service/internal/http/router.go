package httpserver

import (
	"net/http"
	"sort"
	"strings"

	"swapstation/backend/services/reservation-service/internal/http/handlers"
	"swapstation/backend/services/reservation-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Reservations  *handlers.ReservationsHandlers
	Stations      *handlers.StationsHandlers
	Vehicles      *handlers.VehiclesHandlers
	Bookings      *handlers.BookingsHandlers
	Notifications *handlers.NotificationsHandlers
	Health        http.HandlerFunc
	Metrics       http.Handler
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	if deps.Health != nil {
		mux.Handle("/health", method(http.MethodGet, deps.Health))
	}
	if deps.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, deps.Metrics))
	}

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("/api/vehicles", method(http.MethodGet, authenticated(deps.Vehicles.List)))
	mux.Handle("/api/stations", method(http.MethodGet, authenticated(deps.Stations.Search)))

	mux.Handle("/api/reservations", method(http.MethodGet, authenticated(deps.Reservations.List)))
	mux.Handle("/api/reservations/{vehicleID}", methods(map[string]http.Handler{
		http.MethodPost:   authenticated(deps.Reservations.Ensure),
		http.MethodDelete: authenticated(deps.Reservations.Remove),
	}))
	mux.Handle("/api/reservations/{vehicleID}/increment", method(http.MethodPost, authenticated(deps.Reservations.Increment)))
	mux.Handle("/api/reservations/{vehicleID}/decrement", method(http.MethodPost, authenticated(deps.Reservations.Decrement)))

	mux.Handle("/api/bookings", methods(map[string]http.Handler{
		http.MethodGet:  authenticated(deps.Bookings.List),
		http.MethodPost: authenticated(deps.Bookings.Submit),
	}))

	if deps.Notifications != nil {
		mux.Handle("/api/notifications/ws", method(http.MethodGet, authenticated(deps.Notifications.Stream)))
	}

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return methods(map[string]http.Handler{expected: handler})
}

func methods(byMethod map[string]http.Handler) http.Handler {
	allowed := make([]string, 0, len(byMethod))
	for m := range byMethod {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := byMethod[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
