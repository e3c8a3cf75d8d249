package models

// ReservationLine tracks how many batteries one vehicle reserves. Station is nil
// whenever Qty is zero.
type ReservationLine struct {
	Vehicle     Vehicle     `json:"vehicleInfo"`
	Station     *StationRef `json:"stationInfo,omitempty"`
	BatteryType string      `json:"batteryType"`
	Qty         int         `json:"qty"`
}

// ReservationMap is keyed by vehicle id.
type ReservationMap map[int64]ReservationLine

// Clone returns a deep copy.
func (m ReservationMap) Clone() ReservationMap {
	out := make(ReservationMap, len(m))
	for id, line := range m {
		if line.Station != nil {
			ref := *line.Station
			line.Station = &ref
		}
		out[id] = line
	}
	return out
}

// Reserved returns the lines holding at least one battery.
func (m ReservationMap) Reserved() []ReservationLine {
	var lines []ReservationLine
	for _, line := range m {
		if line.Qty > 0 && line.Station != nil {
			lines = append(lines, line)
		}
	}
	return lines
}
