package clients

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"swapstation/backend/services/reservation-service/internal/models"
)

// StationsClient reads stations and their live battery stock from the station backend.
type StationsClient struct {
	base *BaseClient
}

// NewStationsClient returns client.
func NewStationsClient(baseURL string, httpClient HTTPDoer) *StationsClient {
	return &StationsClient{base: NewBaseClient(baseURL, httpClient)}
}

// ListStations fetches every station.
func (c *StationsClient) ListStations(ctx context.Context) ([]models.Station, error) {
	var payload stationList
	if err := c.base.GetJSON(ctx, "/stations", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// NearbyStations fetches stations within radiusKm of the coordinate.
func (c *StationsClient) NearbyStations(ctx context.Context, lat, lng, radiusKm float64) ([]models.Station, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("radius", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var payload stationList
	if err := c.base.GetJSON(ctx, "/stations/nearby", query, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// GetStation fetches one station.
func (c *StationsClient) GetStation(ctx context.Context, stationID int64) (models.Station, error) {
	var st models.Station
	err := c.base.GetJSON(ctx, "/stations/"+strconv.FormatInt(stationID, 10), nil, &st)
	return st, err
}

// stationList accepts both a bare array and the {"data": [...]} envelope.
type stationList []models.Station

func (l *stationList) UnmarshalJSON(data []byte) error {
	var direct []models.Station
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var envelope struct {
		Data []models.Station `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*l = envelope.Data
	return nil
}
