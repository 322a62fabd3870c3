package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

const defaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoProvider implements Provider for Open-Meteo. It needs no
// credentials; weather codes are translated to the coded form the text
// catalog understands.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	api     *apiClient
}

func NewOpenMeteoProvider(cfg HTTPClientConfig) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: defaultOpenMeteoURL,
		api:     newAPIClient("openmeteo", cfg, nil),
	}
}

// WithBaseURL points the provider at another API host.
func (p *OpenMeteoProvider) WithBaseURL(u string) *OpenMeteoProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, loc Location) ([]Period, []byte, error) {
	values := p.values(loc)
	values.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min,precipitation_probability_max,windspeed_10m_max")
	values.Set("forecast_days", "7")

	raw, err := p.get(ctx, values)
	if err != nil {
		return nil, nil, err
	}

	var payload struct {
		Daily struct {
			Time        []int64   `json:"time"`
			WeatherCode []int     `json:"weathercode"`
			TempMax     []float64 `json:"temperature_2m_max"`
			TempMin     []float64 `json:"temperature_2m_min"`
			PrecipProb  []float64 `json:"precipitation_probability_max"`
			WindMax     []float64 `json:"windspeed_10m_max"`
		} `json:"daily"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, raw, fmt.Errorf("decode openmeteo forecast: %w", err)
	}

	d := payload.Daily
	periods := make([]Period, 0, len(d.Time))
	for i, ts := range d.Time {
		periods = append(periods, Period{
			Timestamp:     ts,
			WeatherCoded:  codedWeather(at(d.WeatherCode, i)),
			MinTempF:      at(d.TempMin, i),
			MaxTempF:      at(d.TempMax, i),
			Pop:           at(d.PrecipProb, i),
			WindSpeedMaxM: at(d.WindMax, i),
		})
	}
	return periods, raw, nil
}

func (p *OpenMeteoProvider) Current(ctx context.Context, loc Location) (Observation, error) {
	values := p.values(loc)
	values.Set("current_weather", "true")

	raw, err := p.get(ctx, values)
	if err != nil {
		return Observation{}, err
	}
	var payload struct {
		CurrentWeather struct {
			WeatherCode int `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Observation{}, fmt.Errorf("decode openmeteo observation: %w", err)
	}
	return Observation{WeatherCoded: codedWeather(payload.CurrentWeather.WeatherCode)}, nil
}

func (p *OpenMeteoProvider) values(loc Location) url.Values {
	values := url.Values{}
	values.Set("latitude", loc.Latitude)
	values.Set("longitude", loc.Longitude)
	values.Set("temperature_unit", "fahrenheit")
	values.Set("windspeed_unit", "mph")
	values.Set("timeformat", "unixtime")
	values.Set("timezone", "auto")
	return values
}

func (p *OpenMeteoProvider) get(ctx context.Context, values url.Values) ([]byte, error) {
	body, err := p.api.get(ctx, p.baseURL+"?"+values.Encode())
	if err != nil {
		return nil, fmt.Errorf("openmeteo: %w", err)
	}
	return body, nil
}

// codedWeather maps a WMO weather code to coverage:intensity:weather.
func codedWeather(code int) string {
	switch {
	case code == 0:
		return "::CL"
	case code == 1:
		return "::FW"
	case code == 2:
		return "::SC"
	case code == 3:
		return "::OV"
	case code == 45 || code == 48:
		return "::F"
	case code >= 51 && code <= 55:
		return ":" + intensity(code-51) + ":L"
	case code == 56 || code == 57:
		return "::ZL"
	case code >= 61 && code <= 65:
		return ":" + intensity(code-61) + ":R"
	case code == 66 || code == 67:
		return "::ZR"
	case code >= 71 && code <= 75:
		return ":" + intensity(code-71) + ":S"
	case code == 77:
		return "::IP"
	case code >= 80 && code <= 82:
		return ":" + intensity((code-80)*2) + ":RW"
	case code == 85 || code == 86:
		return ":" + intensity((code-85)*4) + ":SW"
	case code >= 95:
		return "::T"
	default:
		return "::NA"
	}
}

// intensity maps the slight/moderate/heavy step of a WMO code group
// (offsets 0, 2 and 4) to the intensity code.
func intensity(step int) string {
	switch step {
	case 0:
		return "L"
	case 4:
		return "H"
	default:
		return ""
	}
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}
