package quota

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/models"
)

// Store persists the reservation map of one session under a single key.
type Store interface {
	Load(ctx context.Context, key string) (models.ReservationMap, error)
	Save(ctx context.Context, key string, reservations models.ReservationMap) error
	Delete(ctx context.Context, key string) error
}

// StationSource resolves a station from the session's last search snapshot.
type StationSource interface {
	Station(stationID int64) (models.Station, bool)
}

// Notifier receives toasts for rejected operations.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Reason explains why an increment did not apply.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoStation       Reason = "no station selected"
	ReasonBatteryMismatch Reason = "battery type mismatch"
	ReasonStationLocked   Reason = "station locked"
	ReasonVehicleCapacity Reason = "exceeds vehicle capacity"
	ReasonAggregateQuota  Reason = "exceeds aggregate quota"
	ReasonStationStock    Reason = "insufficient station stock"
)

// Outcome reports the result of a quantity change. Limit carries the cap, ceiling or
// remaining stock quoted in the rejection message.
type Outcome struct {
	Applied bool                   `json:"applied"`
	Reason  Reason                 `json:"reason,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
	Line    models.ReservationLine `json:"line"`
}

// IncrementRequest asks for Delta more batteries of BatteryType at StationID.
type IncrementRequest struct {
	VehicleID   int64
	StationID   int64
	BatteryType string
	Delta       int
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Key      string
	Vehicles []models.Vehicle
	Store    Store
	Stations StationSource
	Notifier Notifier
	Logger   *zap.Logger
}

// Engine owns the reservation map of one session and enforces the vehicle capacity,
// station stock and cross-vehicle quota on every change. It is not safe for concurrent
// use; callers serialise access per session.
type Engine struct {
	key      string
	vehicles map[int64]models.Vehicle
	store    Store
	stations StationSource
	notifier Notifier
	logger   *zap.Logger

	lines models.ReservationMap
}

// NewEngine loads the current reservation map for deps.Key.
func NewEngine(ctx context.Context, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("quota: store is required")
	}
	if deps.Key == "" {
		return nil, errors.New("quota: selection key is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = discard{}
	}

	lines, err := deps.Store.Load(ctx, deps.Key)
	if err != nil {
		return nil, fmt.Errorf("quota: load selection: %w", err)
	}
	if lines == nil {
		lines = models.ReservationMap{}
	}

	vehicles := make(map[int64]models.Vehicle, len(deps.Vehicles))
	for _, v := range deps.Vehicles {
		vehicles[v.ID] = v
	}

	return &Engine{
		key:      deps.Key,
		vehicles: vehicles,
		store:    deps.Store,
		stations: deps.Stations,
		notifier: notifier,
		logger:   logger,
		lines:    lines,
	}, nil
}

// Snapshot returns a copy of the reservation map.
func (e *Engine) Snapshot() models.ReservationMap {
	return e.lines.Clone()
}

// Line returns the line of vehicleID.
func (e *Engine) Line(vehicleID int64) (models.ReservationLine, bool) {
	line, ok := e.lines[vehicleID]
	return line, ok
}

// EnsureVehicleLine creates an empty line for vehicle unless one exists. An existing
// line keeps its quantity and station.
func (e *Engine) EnsureVehicleLine(ctx context.Context, vehicle models.Vehicle) (models.ReservationLine, error) {
	if _, known := e.vehicles[vehicle.ID]; !known {
		e.vehicles[vehicle.ID] = vehicle
	}
	if line, ok := e.lines[vehicle.ID]; ok {
		return line, nil
	}

	line := models.ReservationLine{
		Vehicle:     vehicle,
		BatteryType: vehicle.BatteryType,
	}
	next := e.lines.Clone()
	next[vehicle.ID] = line
	if err := e.commit(ctx, next); err != nil {
		return models.ReservationLine{}, err
	}
	return line, nil
}

// AssignedAtStationType sums the quantities bound to stationID for batteryType,
// skipping the excluded vehicles.
func (e *Engine) AssignedAtStationType(stationID int64, batteryType string, excluding ...int64) int {
	total := 0
	for id, line := range e.lines {
		if line.Station == nil || line.Station.ID != stationID || line.BatteryType != batteryType {
			continue
		}
		if slices.Contains(excluding, id) {
			continue
		}
		total += line.Qty
	}
	return total
}

// AttemptIncrement adds req.Delta batteries to the vehicle's line. Rejections are
// reported through the notifier and the returned Outcome; the error is reserved for
// store failures.
func (e *Engine) AttemptIncrement(ctx context.Context, req IncrementRequest) (Outcome, error) {
	delta := req.Delta
	if delta <= 0 {
		delta = 1
	}

	vehicle, ok := e.vehicle(req.VehicleID)
	if !ok || req.StationID == 0 || e.stations == nil {
		return Outcome{Reason: ReasonNoStation}, nil
	}
	station, ok := e.stations.Station(req.StationID)
	if !ok {
		return Outcome{Reason: ReasonNoStation}, nil
	}

	line, exists := e.lines[vehicle.ID]
	if !exists {
		line = models.ReservationLine{Vehicle: vehicle, BatteryType: vehicle.BatteryType}
	}

	if req.BatteryType != vehicle.BatteryType {
		return e.reject(ctx, line, ReasonBatteryMismatch, 0,
			"Battery type mismatch",
			fmt.Sprintf("%s accepts %s batteries, not %s.", label(vehicle), vehicle.BatteryType, req.BatteryType)), nil
	}

	if line.Qty > 0 && line.Station != nil && line.Station.ID != station.ID {
		return e.reject(ctx, line, ReasonStationLocked, 0,
			"Station already selected",
			fmt.Sprintf("%s already reserves batteries at %s. Release them before switching station.", label(vehicle), line.Station.Name)), nil
	}

	// Compared against the headroom so a huge delta cannot overflow line.Qty.
	if delta > vehicle.BatteryCount-line.Qty {
		return e.reject(ctx, line, ReasonVehicleCapacity, vehicle.BatteryCount,
			"Exceeds vehicle capacity",
			fmt.Sprintf("%s can take at most %d batteries.", label(vehicle), vehicle.BatteryCount)), nil
	}
	newQty := line.Qty + delta

	available := station.Available(req.BatteryType)
	others := e.AssignedAtStationType(station.ID, req.BatteryType, vehicle.ID)

	if others > 0 {
		ceiling := min(available, max(0, available-others))
		if newQty > ceiling {
			return e.reject(ctx, line, ReasonAggregateQuota, ceiling,
				"Exceeds aggregate quota",
				fmt.Sprintf("Your other vehicles hold %d %s batteries at %s; at most %d can be assigned to %s.",
					others, req.BatteryType, station.Name, ceiling, label(vehicle))), nil
		}
	}

	if others+newQty > available {
		remaining := max(0, available-others-line.Qty)
		return e.reject(ctx, line, ReasonStationStock, remaining,
			"Insufficient station stock",
			fmt.Sprintf("%s has only %d %s batteries left.", station.Name, remaining, req.BatteryType)), nil
	}

	line.Qty = newQty
	if line.Station == nil {
		line.Station = station.Ref()
	}
	next := e.lines.Clone()
	next[vehicle.ID] = line
	if err := e.commit(ctx, next); err != nil {
		return Outcome{}, err
	}

	e.logger.Debug("battery reserved",
		zap.Int64("vehicle_id", vehicle.ID),
		zap.Int64("station_id", station.ID),
		zap.String("battery_type", req.BatteryType),
		zap.Int("qty", line.Qty),
	)
	return Outcome{Applied: true, Line: line}, nil
}

// AttemptDecrement releases delta batteries, flooring at zero. A line that reaches
// zero loses its station binding but stays in the map.
func (e *Engine) AttemptDecrement(ctx context.Context, vehicleID int64, delta int) (Outcome, error) {
	if delta <= 0 {
		delta = 1
	}
	line, ok := e.lines[vehicleID]
	if !ok {
		return Outcome{Applied: true}, nil
	}

	line.Qty = max(0, line.Qty-delta)
	if line.Qty == 0 {
		line.Station = nil
	}
	next := e.lines.Clone()
	next[vehicleID] = line
	if err := e.commit(ctx, next); err != nil {
		return Outcome{}, err
	}
	return Outcome{Applied: true, Line: line}, nil
}

// RemoveVehicleLine drops the line of vehicleID.
func (e *Engine) RemoveVehicleLine(ctx context.Context, vehicleID int64) error {
	next := e.lines.Clone()
	delete(next, vehicleID)
	return e.commit(ctx, next)
}

// Clear empties the whole map, e.g. after a booking was submitted.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.Delete(ctx, e.key); err != nil {
		return fmt.Errorf("quota: clear selection: %w", err)
	}
	e.lines = models.ReservationMap{}
	return nil
}

func (e *Engine) commit(ctx context.Context, next models.ReservationMap) error {
	if err := e.store.Save(ctx, e.key, next); err != nil {
		return fmt.Errorf("quota: save selection: %w", err)
	}
	e.lines = next
	return nil
}

func (e *Engine) reject(ctx context.Context, line models.ReservationLine, reason Reason, limit int, title, description string) Outcome {
	e.logger.Debug("reservation rejected",
		zap.Int64("vehicle_id", line.Vehicle.ID),
		zap.String("reason", string(reason)),
		zap.Int("limit", limit),
	)
	e.notifier.Notify(ctx, models.Notification{
		Kind:        models.NotificationError,
		Title:       title,
		Description: description,
	})
	return Outcome{Reason: reason, Limit: limit, Line: line}
}

func (e *Engine) vehicle(id int64) (models.Vehicle, bool) {
	if v, ok := e.vehicles[id]; ok {
		return v, true
	}
	if line, ok := e.lines[id]; ok && line.Vehicle.ID == id {
		return line.Vehicle, true
	}
	return models.Vehicle{}, false
}

func label(v models.Vehicle) string {
	if v.VehicleType == "" {
		return fmt.Sprintf("Vehicle #%d", v.ID)
	}
	return fmt.Sprintf("%s (#%d)", v.VehicleType, v.ID)
}

type discard struct{}

func (discard) Notify(context.Context, models.Notification) {}
