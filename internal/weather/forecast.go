package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Location identifies where a forecast is needed. Coordinates are used
// when set, otherwise Label is geocoded.
type Location struct {
	Label     string
	Latitude  float64
	Longitude float64
}

func (l Location) hasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// Forecast is the forecast for one hour.
type Forecast struct {
	Time                     time.Time
	PrecipitationProbability int
}

// Forecaster is the forecast provider contract.
type Forecaster interface {
	Forecast(ctx context.Context, at time.Time, loc Location) (*Forecast, error)
}

var errNoData = errors.New("no forecast for requested hour")

// HTTPForecaster queries an Open-Meteo compatible API.
type HTTPForecaster struct {
	forecastURL string
	geocodeURL  string
	client      *http.Client
}

// NewHTTPForecaster creates a forecaster. geocodeURL may be empty, in
// which case locations without coordinates fail.
func NewHTTPForecaster(forecastURL, geocodeURL string, timeout time.Duration) *HTTPForecaster {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPForecaster{
		forecastURL: strings.TrimRight(forecastURL, "/"),
		geocodeURL:  strings.TrimRight(geocodeURL, "/"),
		client:      &http.Client{Timeout: timeout},
	}
}

type forecastResponse struct {
	Hourly struct {
		Time                     []string `json:"time"`
		PrecipitationProbability []*int   `json:"precipitation_probability"`
	} `json:"hourly"`
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

const hourLayout = "2006-01-02T15:04"

// Forecast implements Forecaster.
func (f *HTTPForecaster) Forecast(ctx context.Context, at time.Time, loc Location) (*Forecast, error) {
	if !loc.hasCoordinates() {
		var err error
		loc, err = f.geocode(ctx, loc.Label)
		if err != nil {
			return nil, err
		}
	}

	hour := at.UTC().Truncate(time.Hour)
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("hourly", "precipitation_probability")
	q.Set("timezone", "GMT")
	q.Set("start_date", hour.Format("2006-01-02"))
	q.Set("end_date", hour.Format("2006-01-02"))

	var resp forecastResponse
	if err := f.getJSON(ctx, f.forecastURL+"/v1/forecast?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	want := hour.Format(hourLayout)
	for i, ts := range resp.Hourly.Time {
		if ts != want || i >= len(resp.Hourly.PrecipitationProbability) {
			continue
		}
		p := resp.Hourly.PrecipitationProbability[i]
		if p == nil {
			return nil, errNoData
		}
		return &Forecast{Time: hour, PrecipitationProbability: *p}, nil
	}
	return nil, errNoData
}

func (f *HTTPForecaster) geocode(ctx context.Context, label string) (Location, error) {
	if f.geocodeURL == "" || strings.TrimSpace(label) == "" {
		return Location{}, errors.New("location has no coordinates")
	}
	q := url.Values{}
	q.Set("name", label)
	q.Set("count", "1")

	var resp geocodeResponse
	if err := f.getJSON(ctx, f.geocodeURL+"/v1/search?"+q.Encode(), &resp); err != nil {
		return Location{}, err
	}
	if len(resp.Results) == 0 {
		return Location{}, fmt.Errorf("geocode %q: no results", label)
	}
	r := resp.Results[0]
	return Location{Label: label, Latitude: r.Latitude, Longitude: r.Longitude}, nil
}

func (f *HTTPForecaster) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("forecast API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
