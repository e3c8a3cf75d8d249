package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/http/middleware"
	"swapstation/backend/services/reservation-service/internal/models"
	"swapstation/backend/services/reservation-service/internal/quota"
	"swapstation/backend/services/reservation-service/internal/service"
	"swapstation/backend/services/reservation-service/internal/stations"
)

const maxBodyBytes = 1 << 16

// ReservationService is the part of service.ReservationService used by the handlers.
type ReservationService interface {
	Vehicles(ctx context.Context, sess service.Session) ([]models.Vehicle, error)
	SearchStations(ctx context.Context, sess service.Session, q stations.Query) (stations.SearchResult, error)
	Reservations(ctx context.Context, sess service.Session) (models.ReservationMap, error)
	EnsureLine(ctx context.Context, sess service.Session, vehicleID int64) (models.ReservationLine, error)
	Increment(ctx context.Context, sess service.Session, req quota.IncrementRequest) (quota.Outcome, error)
	Decrement(ctx context.Context, sess service.Session, vehicleID int64, delta int) (quota.Outcome, error)
	RemoveLine(ctx context.Context, sess service.Session, vehicleID int64) error
	SubmitBooking(ctx context.Context, sess service.Session) ([]models.Booking, error)
	Bookings(ctx context.Context, sess service.Session, limit int) ([]models.Booking, error)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, "vehicle not found")
	case errors.Is(err, service.ErrNothingToBook):
		writeError(w, http.StatusBadRequest, "no batteries reserved")
	case errors.Is(err, service.ErrStaleReservation):
		writeError(w, http.StatusConflict, "station stock changed, please review your reservation")
	case errors.Is(err, stations.ErrDirectoryUnavailable):
		writeError(w, http.StatusBadGateway, "station service unavailable")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func sessionFrom(r *http.Request) (service.Session, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return service.Session{}, false
	}
	key, ok := middleware.SessionKeyFromContext(r.Context())
	if !ok {
		return service.Session{}, false
	}
	return service.Session{Key: key, DriverID: userID}, true
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
