package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/models"
)

// VehiclesHandlers list the driver's vehicles.
type VehiclesHandlers struct {
	svc    ReservationService
	logger *zap.Logger
}

// NewVehiclesHandlers returns handler.
func NewVehiclesHandlers(svc ReservationService, logger *zap.Logger) *VehiclesHandlers {
	return &VehiclesHandlers{svc: svc, logger: logger}
}

// List handles GET /api/vehicles.
func (h *VehiclesHandlers) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicles, err := h.svc.Vehicles(r.Context(), sess)
	if err != nil {
		writeServiceError(w, h.logger, "list vehicles", err)
		return
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	writeJSON(w, http.StatusOK, vehicles)
}
