package repository

import (
	"context"
	"database/sql"

	"swapstation/backend/services/reservation-service/internal/models"
)

// VehicleRepository reads drivers' vehicles.
type VehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository returns repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// ListByDriver returns the vehicles of driverID ordered by id.
func (r *VehicleRepository) ListByDriver(ctx context.Context, driverID int64) ([]models.Vehicle, error) {
	const query = `
		SELECT id, driver_id, vehicle_type, battery_type, battery_count
		FROM vehicles
		WHERE driver_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.DriverID, &v.VehicleType, &v.BatteryType, &v.BatteryCount); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vehicles, nil
}
