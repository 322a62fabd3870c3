package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/weather-skin/internal/envelope"
)

const skinYAML = `
document_url: http://localhost:8080/index.html
landing: day
diagnostic_page: debug
navbar_height: 60
navigation:
  - {name: day, enabled: true, primary: true}
  - {name: week, enabled: true, primary: true}
  - {name: debug, enabled: true, add_query_string: true}
header: outTemp
mqtt:
  enable: true
  host: broker.local
  use_ssl: true
  disconnect: 600
  topics:
    weather/loop:
      qos: 1
      fields:
        outTemp_F: outTemp
    weather/status: {}
`

func TestParseSkinDefaultsAndFields(t *testing.T) {
	skin, err := ParseSkin([]byte(skinYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if skin.PagesDir != "pages" || skin.DefaultLanguage != "en" || skin.MQTT.Port != 9001 || skin.MQTT.Path != "/mqtt" {
		t.Fatalf("defaults not applied: %+v", skin)
	}
	if got := skin.Address("day"); got != "pages/day.html" {
		t.Fatalf("address = %q", got)
	}
	if got := skin.DiagnosticAddress(); got != "pages/debug.html" {
		t.Fatalf("diagnostic address = %q", got)
	}
	if e, ok := skin.Entry("debug"); !ok || !e.AddQueryString {
		t.Fatalf("debug entry = %+v", e)
	}

	fields := skin.MQTT.FieldMap()
	if fields["weather/loop"]["outTemp_F"] != "outTemp" {
		t.Fatalf("field map = %v", fields)
	}
	if _, ok := fields["weather/status"]; ok {
		t.Fatal("topic without renames should not be in the field map")
	}
	if got := skin.OriginPolicy().Target(); got != "http://localhost:8080" {
		t.Fatalf("target origin = %q", got)
	}
}

func TestParseSkinValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing document url", `navigation: []`},
		{"untrusted file origin", `document_url: file:///srv/jas/index.html`},
		{"duplicate entry", "document_url: http://h/\nnavigation: [{name: day}, {name: day}]"},
		{"unknown landing", "document_url: http://h/\nlanding: month\nnavigation: [{name: day}]"},
		{"broker without host", "document_url: http://h/\nmqtt: {enable: true}"},
		{"bad theme", "document_url: http://h/\ndefault_theme: blue"},
		{"bad qos", "document_url: http://h/\nmqtt: {topics: {t: {qos: 3}}}"},
	}
	for _, tt := range tests {
		if _, err := ParseSkin([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	_, err := ParseSkin([]byte(`document_url: file:///srv/jas/index.html`))
	if !errors.Is(err, envelope.ErrUntrustedFileOrigin) {
		t.Fatalf("expected ErrUntrustedFileOrigin, got %v", err)
	}
	skin, err := ParseSkin([]byte("document_url: file:///srv/jas/index.html\ntrusted_origin: true"))
	if err != nil {
		t.Fatalf("trusted file origin rejected: %v", err)
	}
	if skin.OriginPolicy().Target() != envelope.Wildcard {
		t.Fatal("file origin should target the wildcard")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skin.yaml")
	if err := os.WriteFile(path, []byte(skinYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SKIN_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("FORECAST_INTERVAL", "30m")
	t.Setenv("FORECAST_PROVIDER", "openmeteo")
	t.Setenv("STATION_LATITUDE", "44.98")
	t.Setenv("STATION_LONGITUDE", "-93.26")
	t.Setenv("STATION_TIMEZONE", "UTC")

	cfg, err := Load(Flags{ConfigPath: path, Port: "9090"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.SessionBackend != "redis" || cfg.RedisDB != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ForecastInterval != 30*time.Minute || !cfg.ForecastEnabled() {
		t.Fatalf("forecast settings %v enabled=%v", cfg.ForecastInterval, cfg.ForecastEnabled())
	}
	if cfg.Skin.Header != "outTemp" {
		t.Fatalf("skin not loaded: %+v", cfg.Skin)
	}

	t.Setenv("SESSION_BACKEND", "disk")
	if _, err := Load(Flags{ConfigPath: path}); err == nil {
		t.Fatal("expected invalid backend error")
	}
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("FORECAST_INTERVAL", "soon")
	if _, err := Load(Flags{ConfigPath: path}); err == nil {
		t.Fatal("expected invalid interval error")
	}
}
