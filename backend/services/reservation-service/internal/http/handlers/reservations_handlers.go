package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/models"
	"swapstation/backend/services/reservation-service/internal/quota"
)

// ReservationsHandlers expose the quota engine operations.
type ReservationsHandlers struct {
	svc    ReservationService
	logger *zap.Logger
}

// NewReservationsHandlers returns handler.
func NewReservationsHandlers(svc ReservationService, logger *zap.Logger) *ReservationsHandlers {
	return &ReservationsHandlers{svc: svc, logger: logger}
}

// maxDelta bounds a single quantity change; no vehicle carries that many batteries.
const maxDelta = 400

type incrementRequest struct {
	StationID   int64  `json:"stationId"`
	BatteryType string `json:"batteryType"`
	Delta       int    `json:"delta"`
}

type decrementRequest struct {
	Delta int `json:"delta"`
}

// List handles GET /api/reservations.
func (h *ReservationsHandlers) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reservations, err := h.svc.Reservations(r.Context(), sess)
	if err != nil {
		writeServiceError(w, h.logger, "list reservations", err)
		return
	}
	if reservations == nil {
		reservations = models.ReservationMap{}
	}
	writeJSON(w, http.StatusOK, reservations)
}

// Ensure handles POST /api/reservations/{vehicleID}.
func (h *ReservationsHandlers) Ensure(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicleID, err := pathID(r, "vehicleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	line, err := h.svc.EnsureLine(r.Context(), sess, vehicleID)
	if err != nil {
		writeServiceError(w, h.logger, "ensure reservation line", err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// Increment handles POST /api/reservations/{vehicleID}/increment.
func (h *ReservationsHandlers) Increment(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicleID, err := pathID(r, "vehicleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req incrementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Delta < 0 || req.Delta > maxDelta {
		writeError(w, http.StatusBadRequest, "delta out of range")
		return
	}

	out, err := h.svc.Increment(r.Context(), sess, quota.IncrementRequest{
		VehicleID:   vehicleID,
		StationID:   req.StationID,
		BatteryType: req.BatteryType,
		Delta:       req.Delta,
	})
	if err != nil {
		writeServiceError(w, h.logger, "increment reservation", err)
		return
	}
	h.writeOutcome(w, r, out)
}

// Decrement handles POST /api/reservations/{vehicleID}/decrement.
func (h *ReservationsHandlers) Decrement(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicleID, err := pathID(r, "vehicleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req decrementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Delta < 0 || req.Delta > maxDelta {
		writeError(w, http.StatusBadRequest, "delta out of range")
		return
	}

	out, err := h.svc.Decrement(r.Context(), sess, vehicleID, req.Delta)
	if err != nil {
		writeServiceError(w, h.logger, "decrement reservation", err)
		return
	}
	h.writeOutcome(w, r, out)
}

// Remove handles DELETE /api/reservations/{vehicleID}.
func (h *ReservationsHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicleID, err := pathID(r, "vehicleID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RemoveLine(r.Context(), sess, vehicleID); err != nil {
		writeServiceError(w, h.logger, "remove reservation line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeOutcome answers 200 even for rejected changes unless the caller asked for strict
// statuses, in which case a rejection is 422.
func (h *ReservationsHandlers) writeOutcome(w http.ResponseWriter, r *http.Request, out quota.Outcome) {
	status := http.StatusOK
	if !out.Applied && r.URL.Query().Get("strict") == "true" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}
