package forecast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"

	"github.com/i474232898/weather-skin/internal/i18n"
)

const forecastBody = `{
  "success": true,
  "error": null,
  "response": [{"periods": [
    {"timestamp": 1700049600, "weatherPrimaryCoded": "::OV", "minTempF": 41, "maxTempF": 55, "pop": 20, "windSpeedMinMPH": 5, "windSpeedMaxMPH": 12},
    {"timestamp": 1700136000, "weatherPrimaryCoded": "S:L:RW", "minTempF": 39, "maxTempF": 48, "pop": 70, "windSpeedMinMPH": 8, "windSpeedMaxMPH": 20}
  ]}]
}`

const currentBody = `{"success": true, "error": null, "response": {"ob": {"weatherPrimaryCoded": "::FW"}}}`

func newAerisServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("client_id") != "id" || r.URL.Query().Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/forecasts/44.98,-93.26"):
			if r.URL.Query().Get("filter") != "day" || r.URL.Query().Get("limit") != "7" {
				t.Errorf("unexpected forecast query %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, forecastBody)
		case strings.HasPrefix(r.URL.Path, "/observations/44.98,-93.26"):
			fmt.Fprint(w, currentBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCatalog(t *testing.T) *i18n.Catalog {
	t.Helper()
	c, err := i18n.NewCatalog("en")
	if err != nil {
		t.Fatal(err)
	}
	for key, text := range map[string]string{
		"cloud_code_OV":    "Overcast",
		"cloud_code_FW":    "Fair",
		"coverage_code_S":  "Scattered",
		"intensity_code_L": "Light",
		"weather_code_RW":  "Rain Showers",
	} {
		if err := c.Add("en", key, text); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

var station = Location{Latitude: "44.98", Longitude: "-93.26"}

func TestServiceRefreshWritesFilesOncePerHour(t *testing.T) {
	var hits atomic.Int32
	srv := newAerisServer(t, &hits)
	dir := t.TempDir()
	clk := fakeclock.NewFakeClock(time.Unix(1700000000, 0))

	provider := NewAerisProvider(HTTPClientConfig{Client: srv.Client(), Clock: clk}, "id", "secret").WithBaseURL(srv.URL)
	svc := NewService(provider, newCatalog(t), clk, Options{
		DataDir:     dir,
		Location:    station,
		Lang:        "en",
		TimeZone:    time.UTC,
		WithCurrent: true,
	}, nil)

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 API calls, got %d", hits.Load())
	}

	f, err := ReadForecast(dir)
	if err != nil {
		t.Fatalf("read forecast: %v", err)
	}
	if f.Generated != 1699999200 {
		t.Fatalf("generated = %d", f.Generated)
	}
	if len(f.Forecasts) != 2 {
		t.Fatalf("expected 2 days, got %d", len(f.Forecasts))
	}
	first, second := f.Forecasts[0], f.Forecasts[1]
	if first.Observation != "Overcast" || first.Day != "Wed" || first.Date != "11/15" || first.MaxTemp != 55 {
		t.Fatalf("unexpected first day %+v", first)
	}
	if second.Observation != "Scattered Light Rain Showers" || second.Rain != 70 {
		t.Fatalf("unexpected second day %+v", second)
	}

	cur, err := ReadCurrent(dir)
	if err != nil || cur.Current.Observation != "Fair" {
		t.Fatalf("current = %+v (%v)", cur, err)
	}

	// same hour: files are current, no calls
	clk.Increment(10 * time.Minute)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Fatalf("refetched within the hour: %d calls", hits.Load())
	}

	clk.Increment(time.Hour)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 4 {
		t.Fatalf("expected refetch in a new hour, got %d calls", hits.Load())
	}
}

func TestAerisErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": false, "error": {"code": "invalid_client", "description": "bad client"}, "response": []}`)
	}))
	defer srv.Close()

	p := NewAerisProvider(HTTPClientConfig{Client: srv.Client()}, "id", "secret").WithBaseURL(srv.URL)
	if _, _, err := p.Forecast(context.Background(), station); err == nil || !strings.Contains(err.Error(), "bad client") {
		t.Fatalf("expected API error, got %v", err)
	}

	p = NewAerisProvider(HTTPClientConfig{Client: srv.Client()}, "", "")
	if _, err := p.Current(context.Background(), station); err == nil {
		t.Fatal("expected missing credentials error")
	}
}

func TestAPIClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{
		Client:  srv.Client(),
		Backoff: BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}
	body, err := newAPIClient("test", cfg, nil).get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if string(body) != "ok" || calls.Load() != 3 {
		t.Fatalf("body %q after %d calls", body, calls.Load())
	}

	cfg.Backoff.MaxRetries = 0
	calls.Store(0)
	_, err = newAPIClient("test", cfg, nil).get(context.Background(), srv.URL)
	if !errors.Is(err, errServerError) {
		t.Fatalf("expected server error without retries, got %v", err)
	}
}

func TestAPIClientDoesNotRetryProviderErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("q") == "missing" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error": true, "reason": "bad latitude"}`)
			return
		}
		fmt.Fprint(w, `{"success": false, "error": {"code": "invalid_client", "description": "bad client"}}`)
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{
		Client:  srv.Client(),
		Backoff: BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond},
	}
	api := newAPIClient("aeris", cfg, checkAeris)

	// more failures than the breaker tolerates by default
	for i := 0; i < 8; i++ {
		_, err := api.get(context.Background(), srv.URL)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != "invalid_client" {
			t.Fatalf("attempt %d: expected API error, got %v", i, err)
		}
	}
	if calls.Load() != 8 {
		t.Fatalf("expected one call per get, got %d", calls.Load())
	}

	calls.Store(0)
	_, err := api.get(context.Background(), srv.URL+"?q=missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || !strings.Contains(apiErr.Message, "bad latitude") {
		t.Fatalf("expected 400 API error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx was retried: %d calls", calls.Load())
	}
}

func TestReadersReportMissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadForecast(dir); !errors.Is(err, ErrNoForecast) {
		t.Fatalf("forecast: expected ErrNoForecast, got %v", err)
	}
	if _, err := ReadCurrent(dir); !errors.Is(err, ErrNoForecast) {
		t.Fatalf("current: expected ErrNoForecast, got %v", err)
	}
}

func TestObservationText(t *testing.T) {
	lookup := func(key string) string {
		texts := map[string]string{"cloud_code_CL": "Clear", "weather_code_R": "Rain", "intensity_code_H": "Heavy"}
		if s, ok := texts[key]; ok {
			return s
		}
		return key
	}
	tests := []struct {
		coded, want string
	}{
		{"::CL", "Clear"},
		{":H:R", "Heavy Rain"},
		{"C::R", "coverage_code_C Rain"},
		{"::ZZ", "weather_code_ZZ"},
		{"R", "Rain"},
	}
	for _, tt := range tests {
		if got := ObservationText(tt.coded, lookup); got != tt.want {
			t.Errorf("ObservationText(%q) = %q, want %q", tt.coded, got, tt.want)
		}
	}
}

func TestOpenMeteoForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") != "44.98" || q.Get("temperature_unit") != "fahrenheit" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("current_weather") == "true" {
			fmt.Fprint(w, `{"current_weather": {"weathercode": 1}}`)
			return
		}
		fmt.Fprint(w, `{"daily": {
			"time": [1700049600, 1700136000],
			"weathercode": [3, 82],
			"temperature_2m_max": [55, 48],
			"temperature_2m_min": [41, 39],
			"precipitation_probability_max": [20, 70],
			"windspeed_10m_max": [12, 20]
		}}`)
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(HTTPClientConfig{Client: srv.Client()}).WithBaseURL(srv.URL)
	periods, raw, err := p.Forecast(context.Background(), station)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(raw) == 0 || len(periods) != 2 {
		t.Fatalf("unexpected result: %d periods", len(periods))
	}
	if periods[0].WeatherCoded != "::OV" || periods[1].WeatherCoded != ":H:RW" || periods[1].Pop != 70 {
		t.Fatalf("unexpected periods %+v", periods)
	}

	ob, err := p.Current(context.Background(), station)
	if err != nil || ob.WeatherCoded != "::FW" {
		t.Fatalf("current = %+v (%v)", ob, err)
	}
}

func TestCodedWeather(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "::CL"},
		{45, "::F"},
		{51, ":L:L"},
		{63, "::R"},
		{65, ":H:R"},
		{71, ":L:S"},
		{80, ":L:RW"},
		{86, ":H:SW"},
		{99, "::T"},
		{20, "::NA"},
	}
	for _, tt := range tests {
		if got := codedWeather(tt.code); got != tt.want {
			t.Errorf("codedWeather(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
