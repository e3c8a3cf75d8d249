package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/models"
)

const (
	defaultBookingsLimit = 20
	maxBookingsLimit     = 100
)

// BookingsHandlers submit and list bookings.
type BookingsHandlers struct {
	svc    ReservationService
	logger *zap.Logger
}

// NewBookingsHandlers returns handler.
func NewBookingsHandlers(svc ReservationService, logger *zap.Logger) *BookingsHandlers {
	return &BookingsHandlers{svc: svc, logger: logger}
}

// Submit handles POST /api/bookings.
func (h *BookingsHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bookings, err := h.svc.SubmitBooking(r.Context(), sess)
	if err != nil {
		writeServiceError(w, h.logger, "submit booking", err)
		return
	}
	writeJSON(w, http.StatusCreated, bookings)
}

// List handles GET /api/bookings?limit=.
func (h *BookingsHandlers) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := defaultBookingsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxBookingsLimit)
	}
	bookings, err := h.svc.Bookings(r.Context(), sess, limit)
	if err != nil {
		writeServiceError(w, h.logger, "list bookings", err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}
