package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/i474232898/weather-skin/internal/i18n"
)

// File names inside the data directory.
const (
	ForecastFileName    = "forecast.json"
	CurrentFileName     = "current.json"
	RawForecastFileName = "raw.forecast.json"
)

// Options configures a Service.
type Options struct {
	DataDir  string
	Location Location
	// Lang selects the catalog language for observation texts.
	Lang string
	// TimeZone is used for day names and dates.
	TimeZone *time.Location
	// WithCurrent also keeps current.json up to date.
	WithCurrent bool
}

// Service keeps the forecast data files fresh.
type Service struct {
	provider Provider
	catalog  *i18n.Catalog
	clock    clock.Clock
	opts     Options
	logger   *slog.Logger

	mu sync.Mutex
}

func NewService(provider Provider, catalog *i18n.Catalog, clk clock.Clock, opts Options, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TimeZone == nil {
		opts.TimeZone = time.Local
	}
	return &Service{
		provider: provider,
		catalog:  catalog,
		clock:    clk,
		opts:     opts,
		logger:   logger.With("component", "forecast", "provider", provider.Name()),
	}
}

// Refresh fetches whatever is older than the current hour. The forecast
// and the current observation are fetched concurrently; one failing does
// not keep the other from being written.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hour := s.currentHour()

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = s.refreshForecast(ctx, hour)
	}()
	if s.opts.WithCurrent {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[1] = s.refreshCurrent(ctx, hour)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *Service) currentHour() int64 {
	now := s.clock.Now().Unix()
	return now - now%3600
}

func (s *Service) refreshForecast(ctx context.Context, hour int64) error {
	path := filepath.Join(s.opts.DataDir, ForecastFileName)
	var cached ForecastFile
	if ok, err := readJSON(path, &cached); err != nil {
		s.logger.Warn("forecast file unreadable, refetching", "error", err)
	} else if ok && hour <= cached.Generated {
		s.logger.Debug("forecast is current", "generated", cached.Generated)
		return nil
	}

	periods, raw, err := s.provider.Forecast(ctx, s.opts.Location)
	if raw != nil {
		if werr := writeFile(filepath.Join(s.opts.DataDir, RawForecastFileName), raw); werr != nil {
			s.logger.Warn("failed to keep raw forecast", "error", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("fetch forecast: %w", err)
	}

	format := i18n.NewFormatter(s.opts.Lang, s.opts.TimeZone)
	file := ForecastFile{Generated: hour, Forecasts: make([]Day, 0, len(periods))}
	for _, p := range periods {
		ts := time.Unix(p.Timestamp, 0).In(s.opts.TimeZone)
		file.Forecasts = append(file.Forecasts, Day{
			Observation: ObservationText(p.WeatherCoded, s.lookup),
			Day:         format.Weekday(ts),
			Date:        ts.Format("01/02"),
			MinTemp:     p.MinTempF,
			MaxTemp:     p.MaxTempF,
			Rain:        p.Pop,
			MinWind:     p.WindSpeedMinM,
			MaxWind:     p.WindSpeedMaxM,
		})
	}
	if err := writeJSON(path, file); err != nil {
		return err
	}
	s.logger.Info("forecast refreshed", "days", len(file.Forecasts))
	return nil
}

func (s *Service) refreshCurrent(ctx context.Context, hour int64) error {
	path := filepath.Join(s.opts.DataDir, CurrentFileName)
	var cached CurrentFile
	if ok, err := readJSON(path, &cached); err != nil {
		s.logger.Warn("current file unreadable, refetching", "error", err)
	} else if ok && hour <= cached.Generated {
		return nil
	}

	ob, err := s.provider.Current(ctx, s.opts.Location)
	if err != nil {
		return fmt.Errorf("fetch current observation: %w", err)
	}
	file := CurrentFile{Generated: hour, Current: Current{Observation: ObservationText(ob.WeatherCoded, s.lookup)}}
	return writeJSON(path, file)
}

func (s *Service) lookup(key string) string {
	if s.catalog == nil {
		return key
	}
	return s.catalog.Lookup(s.opts.Lang, key)
}

// ErrNoForecast is returned by the readers before the first refresh wrote
// the file.
var ErrNoForecast = errors.New("forecast file not generated yet")

// ReadForecast loads forecast.json from dataDir.
func ReadForecast(dataDir string) (ForecastFile, error) {
	var f ForecastFile
	ok, err := readJSON(filepath.Join(dataDir, ForecastFileName), &f)
	if err != nil {
		return f, err
	}
	if !ok {
		return f, ErrNoForecast
	}
	return f, nil
}

// ReadCurrent loads current.json from dataDir.
func ReadCurrent(dataDir string) (CurrentFile, error) {
	var f CurrentFile
	ok, err := readJSON(filepath.Join(dataDir, CurrentFileName), &f)
	if err != nil {
		return f, err
	}
	if !ok {
		return f, ErrNoForecast
	}
	return f, nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// writeFile replaces path atomically so readers never see a partial file.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
