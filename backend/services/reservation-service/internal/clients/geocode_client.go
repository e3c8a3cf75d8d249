package clients

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// GeocodeClient resolves coordinates to a human readable address through a
// Nominatim compatible /reverse endpoint.
type GeocodeClient struct {
	base *BaseClient
}

// NewGeocodeClient returns client. userAgent is sent on every request as Nominatim
// requires one.
func NewGeocodeClient(baseURL, userAgent string, httpClient HTTPDoer) *GeocodeClient {
	base := NewBaseClient(baseURL, httpClient)
	if userAgent != "" {
		base.WithHeader("User-Agent", userAgent)
	}
	return &GeocodeClient{base: base}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns the display name of the coordinate.
func (c *GeocodeClient) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("format", "json")

	var resp reverseResponse
	if err := c.base.GetJSON(ctx, "/reverse", query, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New("geocode: " + resp.Error)
	}
	name := strings.TrimSpace(resp.DisplayName)
	if name == "" {
		return "", errors.New("geocode: empty display name")
	}
	return name, nil
}
