package models

// Vehicle is a driver's vehicle as stored in the profile. Each vehicle accepts exactly one
// battery type and can swap at most BatteryCount batteries per transaction.
type Vehicle struct {
	ID           int64  `db:"id" json:"vehicleId"`
	DriverID     int64  `db:"driver_id" json:"-"`
	VehicleType  string `db:"vehicle_type" json:"vehicleType"`
	BatteryType  string `db:"battery_type" json:"batteryType"`
	BatteryCount int    `db:"battery_count" json:"batteryCount"`
}
