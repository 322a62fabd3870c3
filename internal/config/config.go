package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	Port string

	// SiteDir is the generated skin (HTML_ROOT). Page data, catalogs and
	// forecast files live under it.
	SiteDir        string
	SkinConfigPath string

	// Session store backend: "memory" or "redis".
	SessionBackend string
	RedisAddr      string
	RedisDB        int
	SessionID      string
	SessionTTL     time.Duration

	LogLevel string

	HTTPTimeout time.Duration

	// Forecast refresh: "aeris" needs client credentials, "openmeteo"
	// does not. A station without coordinates disables the service.
	ForecastProvider  string
	ForecastInterval  time.Duration
	AerisClientID     string
	AerisClientSecret string
	Latitude          string
	Longitude         string
	Timezone          *time.Location

	Skin *SkinConfig
}

// Flags are command-line overrides; empty fields keep the environment value.
type Flags struct {
	ConfigPath string
	SiteDir    string
	Port       string
}

// Load reads configuration from environment with sensible defaults, then
// applies flags and loads the skin file.
func Load(flags Flags) (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.SiteDir = getenvDefault("SITE_DIR", "public_html/jas")
	cfg.SkinConfigPath = getenvDefault("SKIN_CONFIG", "skin.yaml")

	cfg.SessionBackend = getenvDefault("SESSION_BACKEND", "memory")
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)
	cfg.SessionID = os.Getenv("SESSION_ID")

	var err error
	if cfg.SessionTTL, err = getenvDuration("SESSION_TTL", "12h"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ForecastInterval, err = getenvDuration("FORECAST_INTERVAL", "1h"); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.ForecastProvider = getenvDefault("FORECAST_PROVIDER", "aeris")
	cfg.AerisClientID = os.Getenv("AERIS_CLIENT_ID")
	cfg.AerisClientSecret = os.Getenv("AERIS_CLIENT_SECRET")
	cfg.Latitude = os.Getenv("STATION_LATITUDE")
	cfg.Longitude = os.Getenv("STATION_LONGITUDE")

	tz, err := time.LoadLocation(getenvDefault("STATION_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid STATION_TIMEZONE: %w", err)
	}
	cfg.Timezone = tz

	if flags.ConfigPath != "" {
		cfg.SkinConfigPath = flags.ConfigPath
	}
	if flags.SiteDir != "" {
		cfg.SiteDir = flags.SiteDir
	}
	if flags.Port != "" {
		cfg.Port = flags.Port
	}

	if err := validate.Var(cfg.SessionBackend, "oneof=memory redis"); err != nil {
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q: %w", cfg.SessionBackend, err)
	}
	if err := validate.Var(cfg.LogLevel, "oneof=debug info warn error"); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	if err := validate.Var(cfg.ForecastProvider, "oneof=aeris openmeteo"); err != nil {
		return nil, fmt.Errorf("invalid FORECAST_PROVIDER %q: %w", cfg.ForecastProvider, err)
	}

	skin, err := LoadSkin(cfg.SkinConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Skin = skin

	return cfg, nil
}

// ForecastEnabled reports whether the station position and, for Aeris,
// the credentials are configured.
func (c *AppConfig) ForecastEnabled() bool {
	if c.Latitude == "" || c.Longitude == "" {
		return false
	}
	if c.ForecastProvider == "openmeteo" {
		return true
	}
	return c.AerisClientID != "" && c.AerisClientSecret != ""
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	raw := getenvDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
