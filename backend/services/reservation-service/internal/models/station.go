package models

// BatteryStock is the live count of one battery type at a station.
type BatteryStock struct {
	BatteryType string `json:"batteryType"`
	Available   int    `json:"available"`
	Charging    int    `json:"charging"`
}

// Station mirrors the station directory payload.
type Station struct {
	ID             int64          `json:"stationId"`
	Name           string         `json:"stationName"`
	Address        string         `json:"address"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Rating         float64        `json:"rating"`
	Active         bool           `json:"active"`
	AvailableCount int            `json:"availableCount"`
	TotalBatteries int            `json:"totalBatteries"`
	Batteries      []BatteryStock `json:"batteries"`
}

// Available returns the available count for batteryType, 0 when the type is not stocked.
func (s Station) Available(batteryType string) int {
	for _, b := range s.Batteries {
		if b.BatteryType == batteryType {
			return b.Available
		}
	}
	return 0
}

// Ref returns the compact reference stored on reservation lines.
func (s Station) Ref() *StationRef {
	return &StationRef{ID: s.ID, Name: s.Name}
}

// StationRef is the station binding of a reserved line.
type StationRef struct {
	ID   int64  `json:"stationId"`
	Name string `json:"stationName"`
}
