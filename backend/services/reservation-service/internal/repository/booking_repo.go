package repository

import (
	"context"
	"database/sql"
	"fmt"

	"swapstation/backend/services/reservation-service/internal/models"
)

// BookingRepository persists bookings built from reservation maps.
type BookingRepository struct {
	db *sql.DB
}

// NewBookingRepository returns repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateBookings inserts all bookings and their items atomically. CreatedAt is filled
// from the database clock.
func (r *BookingRepository) CreateBookings(ctx context.Context, bookings []models.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertBooking = `
		INSERT INTO bookings (id, driver_id, station_id, station_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	const insertItem = `
		INSERT INTO booking_items (booking_id, vehicle_id, battery_type, qty)
		VALUES ($1, $2, $3, $4)
	`
	for i := range bookings {
		b := &bookings[i]
		if err := tx.QueryRowContext(ctx, insertBooking,
			b.ID,
			b.DriverID,
			b.StationID,
			b.StationName,
			b.Status,
		).Scan(&b.CreatedAt); err != nil {
			return fmt.Errorf("insert booking %s: %w", b.ID, err)
		}
		for _, item := range b.Items {
			if _, err := tx.ExecContext(ctx, insertItem, b.ID, item.VehicleID, item.BatteryType, item.Qty); err != nil {
				return fmt.Errorf("insert booking item %s/%d: %w", b.ID, item.VehicleID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bookings: %w", err)
	}
	return nil
}

// ListByDriver returns the latest bookings of driverID with their items.
func (r *BookingRepository) ListByDriver(ctx context.Context, driverID int64, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT b.id, b.driver_id, b.station_id, b.station_name, b.status, b.created_at,
		       i.vehicle_id, i.battery_type, i.qty
		FROM (
			SELECT * FROM bookings WHERE driver_id = $1 ORDER BY created_at DESC LIMIT $2
		) b
		JOIN booking_items i ON i.booking_id = b.id
		ORDER BY b.created_at DESC, b.id, i.vehicle_id
	`
	rows, err := r.db.QueryContext(ctx, query, driverID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	index := map[string]int{}
	for rows.Next() {
		var b models.Booking
		var item models.BookingItem
		if err := rows.Scan(
			&b.ID,
			&b.DriverID,
			&b.StationID,
			&b.StationName,
			&b.Status,
			&b.CreatedAt,
			&item.VehicleID,
			&item.BatteryType,
			&item.Qty,
		); err != nil {
			return nil, err
		}
		pos, ok := index[b.ID]
		if !ok {
			pos = len(bookings)
			index[b.ID] = pos
			bookings = append(bookings, b)
		}
		bookings[pos].Items = append(bookings[pos].Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}
