package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-skin/internal/broker"
	"github.com/i474232898/weather-skin/internal/content"
	"github.com/i474232898/weather-skin/internal/envelope"
	"github.com/i474232898/weather-skin/internal/frame"
	"github.com/i474232898/weather-skin/internal/router"
	"github.com/i474232898/weather-skin/internal/shell"
	"github.com/i474232898/weather-skin/internal/store"
)

var validate = validator.New()

// Deps are what the routes drive.
type Deps struct {
	Shell   *shell.Shell
	Content *content.Loader
	Store   store.Store

	// Refresh runs a full data refresh cycle; nil only notifies content.
	Refresh func()
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Get("/session", func(c *fiber.Ctx) error {
		return c.JSON(store.Dump(deps.Store))
	})

	v1.Get("/top", func(c *fiber.Ctx) error {
		snap, err := deps.Shell.Snapshot()
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(snap)
	})

	v1.Get("/content", func(c *fiber.Ctx) error {
		cur := deps.Content.Current()
		if cur == nil {
			return fiber.NewError(fiber.StatusNotFound, "no content mounted")
		}
		state, err := cur.State()
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{
			"state": state,
			"nodes": cur.Document().Snapshot(),
		})
	})

	v1.Post("/navigate", func(c *fiber.Ctx) error {
		var req navigateRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		if req.Address != "" {
			return reply(c, deps.Shell.SetActiveContent(req.Address, req.AddQueryString))
		}
		return reply(c, deps.Shell.Navigate(req.Name))
	})

	v1.Put("/lang", func(c *fiber.Ctx) error {
		var req langRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return reply(c, deps.Shell.SetLanguage(req.Lang))
	})

	v1.Put("/theme", func(c *fiber.Ctx) error {
		var req themeRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return reply(c, deps.Shell.SetTheme(req.Theme))
	})

	v1.Put("/loglevel", func(c *fiber.Ctx) error {
		var req logLevelRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		return reply(c, deps.Shell.SetLogLevel(req.Level))
	})

	v1.Get("/loglevel", func(c *fiber.Ctx) error {
		if err := deps.Shell.GetLogLevel(); err != nil {
			return toFiberError(err)
		}
		level, err := store.Require(deps.Store, deps.Shell.LogLevelKey())
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{"level": level})
	})

	v1.Post("/viewport", func(c *fiber.Ctx) error {
		var req viewportRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		if err := deps.Shell.WindowResized(req.Width, req.Height); err != nil {
			return toFiberError(err)
		}
		return reply(c, deps.Shell.Scrolled(req.ScrollY))
	})

	v1.Get("/broker", func(c *fiber.Ctx) error {
		return c.JSON(deps.Shell.Broker().Info())
	})

	v1.Post("/broker/connect", func(c *fiber.Ctx) error {
		return reply(c, deps.Shell.Connect())
	})

	v1.Post("/broker/disconnect", func(c *fiber.Ctx) error {
		return reply(c, deps.Shell.Disconnect())
	})

	v1.Post("/refresh", func(c *fiber.Ctx) error {
		if deps.Refresh != nil {
			go deps.Refresh()
			return c.SendStatus(fiber.StatusAccepted)
		}
		return reply(c, deps.Shell.RefreshData())
	})

	v1.Post("/log", func(c *fiber.Ctx) error {
		var v any
		if err := c.BodyParser(&v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return reply(c, deps.Shell.Log(v))
	})

	v1.Post("/show", func(c *fiber.Ctx) error {
		var v any
		if err := c.BodyParser(&v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return reply(c, deps.Shell.Show(v))
	})
}

type navigateRequest struct {
	Name           string `json:"name" validate:"required_without=Address"`
	Address        string `json:"address"`
	AddQueryString bool   `json:"addQueryString"`
}

type langRequest struct {
	Lang string `json:"lang" validate:"required,max=16"`
}

type themeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=dark light"`
}

type logLevelRequest struct {
	Level string `json:"level" validate:"required,oneof=debug info warn error"`
}

type viewportRequest struct {
	Width   int `json:"width" validate:"gte=0"`
	Height  int `json:"height" validate:"gte=0"`
	ScrollY int `json:"scrollY" validate:"gte=0"`
}

func bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func reply(c *fiber.Ctx, err error) error {
	if err != nil {
		return toFiberError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// toFiberError maps runtime errors to HTTP statuses.
func toFiberError(err error) error {
	switch {
	case errors.Is(err, router.ErrUnknownPage), errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, router.ErrNoLanding):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, envelope.ErrInvalidPayload), errors.Is(err, envelope.ErrUnknownKind):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, broker.ErrBreakerOpen), errors.Is(err, frame.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
