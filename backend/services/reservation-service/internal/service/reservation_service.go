package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/models"
	"swapstation/backend/services/reservation-service/internal/notify"
	"swapstation/backend/services/reservation-service/internal/quota"
	"swapstation/backend/services/reservation-service/internal/stations"
)

// Errors surfaced to the HTTP layer.
var (
	ErrVehicleNotFound  = errors.New("reservation: vehicle not found")
	ErrNothingToBook    = errors.New("reservation: no batteries reserved")
	ErrStaleReservation = errors.New("reservation: station stock changed")
)

// Operation names used as metric labels.
const (
	OpEnsure    = "ensure"
	OpIncrement = "increment"
	OpDecrement = "decrement"
	OpRemove    = "remove"
	OpSubmit    = "submit"
)

// VehicleSource lists a driver's vehicles.
type VehicleSource interface {
	ListByDriver(ctx context.Context, driverID int64) ([]models.Vehicle, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	CreateBookings(ctx context.Context, bookings []models.Booking) error
	ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.Booking, error)
}

// NotifierFactory returns the notifier of one session.
type NotifierFactory func(session string) notify.Notifier

// Session identifies the caller: the browsing session owning the selection and the
// driver owning the vehicles.
type Session struct {
	Key      string
	DriverID int64
}

// ReservationService runs quota engine operations for authenticated sessions.
type ReservationService struct {
	vehicles  VehicleSource
	bookings  BookingStore
	store     quota.Store
	directory *stations.Directory
	notifiers NotifierFactory
	metrics   *metrics.Metrics
	logger    *zap.Logger
	locks     *sessionLocks
}

// Deps groups the collaborators of ReservationService.
type Deps struct {
	Vehicles  VehicleSource
	Bookings  BookingStore
	Store     quota.Store
	Directory *stations.Directory
	Notifiers NotifierFactory
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewReservationService builds service.
func NewReservationService(deps Deps) *ReservationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifiers := deps.Notifiers
	if notifiers == nil {
		notifiers = func(string) notify.Notifier { return notify.Multi() }
	}
	return &ReservationService{
		vehicles:  deps.Vehicles,
		bookings:  deps.Bookings,
		store:     deps.Store,
		directory: deps.Directory,
		notifiers: notifiers,
		metrics:   deps.Metrics,
		logger:    logger,
		locks:     newSessionLocks(),
	}
}

// Vehicles returns the driver's vehicles.
func (s *ReservationService) Vehicles(ctx context.Context, sess Session) ([]models.Vehicle, error) {
	return s.vehicles.ListByDriver(ctx, sess.DriverID)
}

// SearchStations replaces the session's station snapshot.
func (s *ReservationService) SearchStations(ctx context.Context, sess Session, q stations.Query) (stations.SearchResult, error) {
	res, err := s.directory.Search(ctx, sess.Key, q)
	if err != nil {
		if ctx.Err() == nil {
			s.notifiers(sess.Key).Notify(ctx, models.Notification{
				Kind:        models.NotificationWarning,
				Title:       "Station search failed",
				Description: "Could not load stations. Showing the previous results.",
			})
		}
		return res, err
	}
	return res, nil
}

// Reservations returns the session's reservation map.
func (s *ReservationService) Reservations(ctx context.Context, sess Session) (models.ReservationMap, error) {
	return s.store.Load(ctx, sess.Key)
}

// EnsureLine makes sure vehicleID has a line.
func (s *ReservationService) EnsureLine(ctx context.Context, sess Session, vehicleID int64) (models.ReservationLine, error) {
	var line models.ReservationLine
	err := s.withEngine(ctx, sess, func(e *quota.Engine, vehicles []models.Vehicle) error {
		vehicle, ok := findVehicle(vehicles, vehicleID)
		if !ok {
			return ErrVehicleNotFound
		}
		var err error
		line, err = e.EnsureVehicleLine(ctx, vehicle)
		return err
	})
	s.observe(OpEnsure, quota.Outcome{Applied: err == nil}, err)
	return line, err
}

// Increment reserves more batteries for a vehicle.
func (s *ReservationService) Increment(ctx context.Context, sess Session, req quota.IncrementRequest) (quota.Outcome, error) {
	var out quota.Outcome
	err := s.withEngine(ctx, sess, func(e *quota.Engine, _ []models.Vehicle) error {
		var err error
		out, err = e.AttemptIncrement(ctx, req)
		return err
	})
	s.observe(OpIncrement, out, err)
	return out, err
}

// Decrement releases batteries of a vehicle.
func (s *ReservationService) Decrement(ctx context.Context, sess Session, vehicleID int64, delta int) (quota.Outcome, error) {
	var out quota.Outcome
	err := s.withEngine(ctx, sess, func(e *quota.Engine, _ []models.Vehicle) error {
		var err error
		out, err = e.AttemptDecrement(ctx, vehicleID, delta)
		return err
	})
	s.observe(OpDecrement, out, err)
	return out, err
}

// RemoveLine drops the vehicle's line.
func (s *ReservationService) RemoveLine(ctx context.Context, sess Session, vehicleID int64) error {
	err := s.withEngine(ctx, sess, func(e *quota.Engine, _ []models.Vehicle) error {
		return e.RemoveVehicleLine(ctx, vehicleID)
	})
	s.observe(OpRemove, quota.Outcome{Applied: err == nil}, err)
	return err
}

// SubmitBooking converts the reserved lines into one booking per station. Stock is
// re-read from the station backend first; on shortfall nothing is persisted and the
// selection is kept so the driver can adjust it.
func (s *ReservationService) SubmitBooking(ctx context.Context, sess Session) ([]models.Booking, error) {
	var created []models.Booking
	err := s.withEngine(ctx, sess, func(e *quota.Engine, _ []models.Vehicle) error {
		notifier := s.notifiers(sess.Key)

		byStation := groupByStation(e.Snapshot().Reserved())
		if len(byStation) == 0 {
			return ErrNothingToBook
		}

		stationIDs := make([]int64, 0, len(byStation))
		for id := range byStation {
			stationIDs = append(stationIDs, id)
		}
		sort.Slice(stationIDs, func(i, j int) bool { return stationIDs[i] < stationIDs[j] })

		bookings := make([]models.Booking, 0, len(stationIDs))
		for _, stationID := range stationIDs {
			lines := byStation[stationID]
			st, err := s.directory.Refresh(ctx, sess.Key, stationID)
			if err != nil {
				return err
			}
			if err := checkStock(st, lines); err != nil {
				notifier.Notify(ctx, models.Notification{
					Kind:        models.NotificationError,
					Title:       "Reservation out of date",
					Description: fmt.Sprintf("%s no longer has enough batteries. Please adjust your selection.", st.Name),
				})
				return err
			}
			bookings = append(bookings, buildBooking(sess.DriverID, st, lines))
		}

		if err := s.bookings.CreateBookings(ctx, bookings); err != nil {
			return fmt.Errorf("persist bookings: %w", err)
		}
		if err := e.Clear(ctx); err != nil {
			s.logger.Warn("bookings created but selection not cleared", zap.Error(err))
		}

		s.metrics.BookingsCreated(len(bookings))
		notifier.Notify(ctx, models.Notification{
			Kind:        models.NotificationSuccess,
			Title:       "Booking confirmed",
			Description: fmt.Sprintf("%d booking(s) created.", len(bookings)),
		})
		s.logger.Info("bookings submitted",
			zap.Int64("driver_id", sess.DriverID),
			zap.Int("bookings", len(bookings)),
		)
		created = bookings
		return nil
	})
	s.observe(OpSubmit, quota.Outcome{Applied: err == nil}, err)
	return created, err
}

// Bookings lists the driver's latest bookings.
func (s *ReservationService) Bookings(ctx context.Context, sess Session, limit int) ([]models.Booking, error) {
	return s.bookings.ListByDriver(ctx, sess.DriverID, limit)
}

func (s *ReservationService) withEngine(ctx context.Context, sess Session, fn func(*quota.Engine, []models.Vehicle) error) error {
	unlock := s.locks.lock(sess.Key)
	defer unlock()

	vehicles, err := s.vehicles.ListByDriver(ctx, sess.DriverID)
	if err != nil {
		return fmt.Errorf("load vehicles: %w", err)
	}

	engine, err := quota.NewEngine(ctx, quota.Deps{
		Key:      sess.Key,
		Vehicles: vehicles,
		Store:    s.store,
		Stations: s.directory.Source(sess.Key),
		Notifier: s.notifiers(sess.Key),
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	return fn(engine, vehicles)
}

func (s *ReservationService) observe(op string, out quota.Outcome, err error) {
	switch {
	case err != nil:
		s.metrics.ObserveOperation(op, "error")
	case out.Applied:
		s.metrics.ObserveOperation(op, "applied")
	default:
		s.metrics.ObserveOperation(op, string(out.Reason))
	}
}

func findVehicle(vehicles []models.Vehicle, id int64) (models.Vehicle, bool) {
	for _, v := range vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return models.Vehicle{}, false
}

func groupByStation(lines []models.ReservationLine) map[int64][]models.ReservationLine {
	out := make(map[int64][]models.ReservationLine)
	for _, line := range lines {
		out[line.Station.ID] = append(out[line.Station.ID], line)
	}
	return out
}

func checkStock(st models.Station, lines []models.ReservationLine) error {
	wanted := make(map[string]int)
	for _, line := range lines {
		wanted[line.BatteryType] += line.Qty
	}
	for batteryType, qty := range wanted {
		if available := st.Available(batteryType); qty > available {
			return fmt.Errorf("%w: station %d has %d %s, %d reserved", ErrStaleReservation, st.ID, available, batteryType, qty)
		}
	}
	return nil
}

func buildBooking(driverID int64, st models.Station, lines []models.ReservationLine) models.Booking {
	items := make([]models.BookingItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.BookingItem{
			VehicleID:   line.Vehicle.ID,
			BatteryType: line.BatteryType,
			Qty:         line.Qty,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].VehicleID < items[j].VehicleID })

	name := st.Name
	if name == "" && len(lines) > 0 {
		name = lines[0].Station.Name
	}
	return models.Booking{
		ID:          uuid.NewString(),
		DriverID:    driverID,
		StationID:   st.ID,
		StationName: name,
		Status:      models.BookingStatusPending,
		Items:       items,
	}
}

// sessionLocks serialises operations per session key.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &sessionLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
