// Package imtd synchronises station thresholds and display time series from
// the IMTD thresholds API into the database.
package imtd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the API has no record of a station.
var ErrNotFound = errors.New("station not found")

// DefaultTimeout applies when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// Threshold is one level of a time series.
type Threshold struct {
	ThresholdType    string  `json:"ThresholdType"`
	Level            float64 `json:"Level"`
	FloodWarningArea *string `json:"FloodWarningArea"`
}

// TimeSeries is one parameter/qualifier series of a location.
type TimeSeries struct {
	Parameter         string      `json:"Parameter"`
	Qualifier         string      `json:"qualifier"`
	Unit              string      `json:"Unit"`
	DisplayTimeSeries *bool       `json:"DisplayTimeSeries"`
	Thresholds        []Threshold `json:"Thresholds"`
}

// Location is a station as returned by /Location/{id}.
type Location struct {
	RLOIID             string       `json:"RLOIid"`
	WiskiID            string       `json:"wiskiID"`
	TelemetryID        string       `json:"telemetryID"`
	Name               string       `json:"Name"`
	TimeSeriesMetaData []TimeSeries `json:"TimeSeriesMetaData"`
}

// Client calls the thresholds API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL. A nil httpClient gets one with
// DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// TimeSeries fetches the time series metadata of the first location
// returned for stationID. A 404 is ErrNotFound.
func (c *Client) TimeSeries(ctx context.Context, stationID int64) ([]TimeSeries, error) {
	url := fmt.Sprintf("%s/Location/%d?version=2", c.baseURL, stationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("IMTD API request for station %d failed (Error: %w)", stationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("station %d: %w", stationID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IMTD API request for station %d failed (HTTP Status: %d)", stationID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading IMTD response for station %d failed: %w", stationID, err)
	}
	var locations []Location
	if err := json.Unmarshal(body, &locations); err != nil {
		return nil, fmt.Errorf("decoding IMTD response for station %d failed: %w", stationID, err)
	}
	if len(locations) == 0 {
		return nil, nil
	}
	return locations[0].TimeSeriesMetaData, nil
}
