package repository

// Schema creates the tables owned by reservation-service.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS vehicles (
		id            BIGSERIAL PRIMARY KEY,
		driver_id     BIGINT      NOT NULL,
		vehicle_type  TEXT        NOT NULL DEFAULT '',
		battery_type  TEXT        NOT NULL,
		battery_count INTEGER     NOT NULL CHECK (battery_count >= 0),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS vehicles_driver_idx ON vehicles (driver_id)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           UUID PRIMARY KEY,
		driver_id    BIGINT      NOT NULL,
		station_id   BIGINT      NOT NULL,
		station_name TEXT        NOT NULL DEFAULT '',
		status       TEXT        NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_driver_idx ON bookings (driver_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS booking_items (
		booking_id   UUID    NOT NULL REFERENCES bookings (id) ON DELETE CASCADE,
		vehicle_id   BIGINT  NOT NULL,
		battery_type TEXT    NOT NULL,
		qty          INTEGER NOT NULL CHECK (qty > 0),
		PRIMARY KEY (booking_id, vehicle_id)
	)`,
}
