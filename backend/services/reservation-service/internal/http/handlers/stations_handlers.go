package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/models"
	"swapstation/backend/services/reservation-service/internal/stations"
)

// StationsHandlers serve station searches.
type StationsHandlers struct {
	svc    ReservationService
	logger *zap.Logger
}

// NewStationsHandlers returns handler.
func NewStationsHandlers(svc ReservationService, logger *zap.Logger) *StationsHandlers {
	return &StationsHandlers{svc: svc, logger: logger}
}

// Search handles GET /api/stations?lat=&lng=&radiusKm=. Without coordinates every
// station is listed.
func (h *StationsHandlers) Search(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.SearchStations(r.Context(), sess, q)
	if err != nil {
		writeServiceError(w, h.logger, "station search", err)
		return
	}
	if res.Stations == nil {
		res.Stations = []models.Station{}
	}
	writeJSON(w, http.StatusOK, res)
}

func parseQuery(r *http.Request) (stations.Query, error) {
	values := r.URL.Query()
	var q stations.Query

	lat, lng := values.Get("lat"), values.Get("lng")
	if lat != "" || lng != "" {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil || la < -90 || la > 90 {
			return q, errInvalidParam("lat")
		}
		ln, err := strconv.ParseFloat(lng, 64)
		if err != nil || ln < -180 || ln > 180 {
			return q, errInvalidParam("lng")
		}
		q.Origin = &stations.Coordinates{Lat: la, Lng: ln}
	}

	if raw := values.Get("radiusKm"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			return q, errInvalidParam("radiusKm")
		}
		q.RadiusKm = radius
	}
	return q, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid " + string(e) }
