// Package forecast fetches the daily forecast and the current observation
// for the station from the Aeris weather API and caches both as data files
// next to the generated pages, refetching at most once per hour.
package forecast

import (
	"context"
)

// Location is the station position as configured.
type Location struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Key is the "lat,lon" form used in API paths.
func (l Location) Key() string {
	return l.Latitude + "," + l.Longitude
}

// Period is one forecast day as returned by a provider.
type Period struct {
	Timestamp     int64   `json:"timestamp"`
	WeatherCoded  string  `json:"weatherPrimaryCoded"`
	MinTempF      float64 `json:"minTempF"`
	MaxTempF      float64 `json:"maxTempF"`
	Pop           float64 `json:"pop"`
	WindSpeedMinM float64 `json:"windSpeedMinMPH"`
	WindSpeedMaxM float64 `json:"windSpeedMaxMPH"`
}

// Observation is the latest observation near the station.
type Observation struct {
	WeatherCoded string `json:"weatherPrimaryCoded"`
}

// Provider abstracts a forecast source. Raw responses are returned as well
// so they can be kept for inspection.
type Provider interface {
	Name() string
	Forecast(ctx context.Context, loc Location) ([]Period, []byte, error)
	Current(ctx context.Context, loc Location) (Observation, error)
}

// Day is one rendered forecast day, as stored in forecast.json.
type Day struct {
	Observation string  `json:"observation"`
	Day         string  `json:"day"`
	Date        string  `json:"date"`
	MinTemp     float64 `json:"min_temp"`
	MaxTemp     float64 `json:"max_temp"`
	Rain        float64 `json:"rain"`
	MinWind     float64 `json:"min_wind"`
	MaxWind     float64 `json:"max_wind"`
}

// ForecastFile is the content of forecast.json. Generated is the start of
// the hour (epoch seconds) the data was fetched in.
type ForecastFile struct {
	Generated int64 `json:"generated"`
	Forecasts []Day `json:"forecasts"`
}

// Current is the rendered current observation.
type Current struct {
	Observation string `json:"observation"`
}

// CurrentFile is the content of current.json.
type CurrentFile struct {
	Generated int64   `json:"generated"`
	Current   Current `json:"current"`
}
