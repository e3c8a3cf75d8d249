package models

import "time"

// Booking status values.
const (
	BookingStatusPending = "PENDING"
)

// BookingItem is one vehicle's share of a booking.
type BookingItem struct {
	VehicleID   int64  `db:"vehicle_id" json:"vehicleId"`
	BatteryType string `db:"battery_type" json:"batteryType"`
	Qty         int    `db:"qty" json:"qty"`
}

// Booking groups the reserved batteries of one driver at one station.
type Booking struct {
	ID          string        `db:"id" json:"bookingId"`
	DriverID    int64         `db:"driver_id" json:"driverId"`
	StationID   int64         `db:"station_id" json:"stationId"`
	StationName string        `db:"station_name" json:"stationName"`
	Status      string        `db:"status" json:"status"`
	Items       []BookingItem `json:"items"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// TotalQty sums item quantities.
func (b Booking) TotalQty() int {
	total := 0
	for _, it := range b.Items {
		total += it.Qty
	}
	return total
}
