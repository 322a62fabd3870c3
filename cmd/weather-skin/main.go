package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	httpapi "github.com/i474232898/weather-skin/internal/api/http"
	"github.com/i474232898/weather-skin/internal/config"
	"github.com/i474232898/weather-skin/internal/content"
	"github.com/i474232898/weather-skin/internal/forecast"
	"github.com/i474232898/weather-skin/internal/i18n"
	"github.com/i474232898/weather-skin/internal/scheduler"
	"github.com/i474232898/weather-skin/internal/shell"
	"github.com/i474232898/weather-skin/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	var flags config.Flags
	pflag.StringVar(&flags.ConfigPath, "config", "", "skin config file (overrides SKIN_CONFIG)")
	pflag.StringVar(&flags.SiteDir, "site", "", "generated site directory (overrides SITE_DIR)")
	pflag.StringVar(&flags.Port, "port", "", "HTTP port (overrides PORT)")
	pflag.Parse()

	// Load configuration.
	cfg, err := config.Load(flags)
	if err != nil {
		fatal(slog.Default(), "failed to load config", err)
	}

	slogger, levels, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		fatal(slog.Default(), "invalid log level", err)
	}
	slog.SetDefault(slogger)

	sessions, closeStore, err := openStore(cfg)
	if err != nil {
		fatal(slogger, "failed to open session store", err)
	}
	defer closeStore()

	catalog, err := i18n.NewCatalog(cfg.Skin.DefaultLanguage)
	if err != nil {
		fatal(slogger, "failed to create catalog", err)
	}
	if err := catalog.LoadDir(filepath.Join(cfg.SiteDir, cfg.Skin.LangDir)); err != nil {
		slogger.Warn("no translation catalog loaded", "error", err)
	}

	dataDir := filepath.Join(cfg.SiteDir, cfg.Skin.DataDir)
	loader := content.NewLoader(content.Options{
		Skin:        cfg.Skin,
		Source:      content.FileSource{Dir: dataDir},
		Store:       sessions,
		Catalog:     catalog,
		Location:    cfg.Timezone,
		ForecastDir: dataDir,
		Levels:      levels,
		Logger:      slogger,
	})

	sh := shell.New(shell.Options{
		Skin:    cfg.Skin,
		Store:   sessions,
		Mounter: loader,
		Logger:  slogger,
	})
	if err := sh.Load(); err != nil {
		fatal(slogger, "failed to load skin", err)
	}
	defer sh.Close()

	// Forecast files are refreshed on a schedule; content reloads its page
	// data after every run.
	var refresher scheduler.Refresher
	if cfg.ForecastEnabled() {
		refresher = forecast.NewService(newProvider(cfg), catalog, nil, forecast.Options{
			DataDir:     dataDir,
			Location:    forecast.Location{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
			Lang:        cfg.Skin.DefaultLanguage,
			TimeZone:    cfg.Timezone,
			WithCurrent: true,
		}, slogger)
	} else {
		slogger.Info("forecast service disabled: station or credentials not configured")
	}
	sched := scheduler.New(cfg.ForecastInterval, refresher, sh, slogger)
	if err := sched.Start(); err != nil {
		fatal(slogger, "failed to start scheduler", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-skin",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-skin",
			"broker":  sh.Broker().Status().String(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Shell:   sh,
		Content: loader,
		Store:   sessions,
		Refresh: sched.RunNow,
	})

	// The generated skin itself.
	app.Static("/", cfg.SiteDir)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slogger.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slogger.Error("error during shutdown", "error", err)
	}
}

// newLogger builds the process logger. The returned level is shared with
// content, which changes it with setLogLevel.
func newLogger(w io.Writer, level string) (*slog.Logger, *slog.LevelVar, error) {
	levels := new(slog.LevelVar)
	if err := levels.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levels})), levels, nil
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// openStore returns the session store of the configured backend and a
// function releasing it.
func openStore(cfg *config.AppConfig) (store.Store, func(), error) {
	if cfg.SessionBackend != "redis" {
		return store.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	s := store.NewRedisStore(rdb, cfg.SessionID, cfg.SessionTTL)
	slog.Info("session store ready", "backend", "redis", "session", s.SessionID())
	return s, func() { rdb.Close() }, nil
}

func newProvider(cfg *config.AppConfig) forecast.Provider {
	// Shared HTTP client for outbound provider calls.
	httpCfg := forecast.HTTPClientConfig{Client: &http.Client{Timeout: cfg.HTTPTimeout}}
	if cfg.ForecastProvider == "openmeteo" {
		return forecast.NewOpenMeteoProvider(httpCfg)
	}
	return forecast.NewAerisProvider(httpCfg, cfg.AerisClientID, cfg.AerisClientSecret)
}
