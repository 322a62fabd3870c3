package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/i474232898/weather-skin/internal/dispatch"
	"github.com/i474232898/weather-skin/internal/dom"
	"github.com/i474232898/weather-skin/internal/envelope"
	"github.com/i474232898/weather-skin/internal/forecast"
	"github.com/i474232898/weather-skin/internal/frame"
	"github.com/i474232898/weather-skin/internal/geometry"
	"github.com/i474232898/weather-skin/internal/store"
)

// Content is one mounted page. Everything except State and Document runs
// on the content loop.
type Content struct {
	ctx        context.Context
	page       string
	win        *frame.Window
	doc        *dom.Document
	opts       Options
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher

	layout   geometry.Layout
	loaded   bool
	forecast bool
}

// State is a point-in-time view of a content context.
type State struct {
	Page     string                 `json:"page"`
	Loaded   bool                   `json:"loaded"`
	Lang     string                 `json:"lang"`
	Height   int                    `json:"height"`
	Declared []string               `json:"declared"`
	Viewport envelope.ResizeMessage `json:"viewport"`
	Scroll   envelope.ScrollMessage `json:"scroll"`
}

func (c *Content) Page() string { return c.page }

func (c *Content) Window() *frame.Window { return c.win }

func (c *Content) Document() *dom.Document { return c.doc }

// State reads the content state on its loop.
func (c *Content) State() (State, error) {
	var s State
	err := c.win.Loop().Do(func() {
		s = State{
			Page:     c.page,
			Loaded:   c.loaded,
			Lang:     c.dispatcher.Lang(),
			Height:   c.layout.Height(),
			Declared: c.dispatcher.Declared(),
			Viewport: c.layout.Viewport(),
			Scroll:   c.layout.Scroll(),
		}
	})
	return s, err
}

// load fetches page data off the loop and renders it on the loop. A first
// load announces itself with resize and loaded; a refresh only resizes.
func (c *Content) load(ctx context.Context, refresh bool) {
	pd, err := c.opts.Source.Load(ctx, c.page)
	if ctx.Err() != nil {
		c.logger.Debug("page load cancelled")
		return
	}
	c.win.Loop().Post(func() {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error("failed to load page data", "error", err)
			c.showError(err)
		} else {
			c.build(pd)
		}
		c.announce(!refresh)
	})
}

func (c *Content) build(pd PageData) {
	layout := geometry.DefaultLayout()
	if pd.Layout != nil {
		layout = *pd.Layout
	}
	layout.Resized(c.layout.Viewport())
	layout.Scrolled(c.layout.Scroll())

	for _, rec := range pd.Observations {
		c.doc.Create(rec.Name)
		c.doc.Create(rec.Name + dispatch.LabelSuffix)
	}
	c.dispatcher.Cache(pd.References...)
	c.dispatcher.Declare(pd.Observations...)
	c.dispatcher.RenderAll()

	layout.Rows = len(pd.Observations)
	c.forecast = pd.Forecast
	if pd.Forecast {
		layout.Rows += c.renderForecast()
	}
	c.renderSelection(pd.Selections)
	c.layout = layout

	theme := c.opts.Skin.DefaultTheme
	if stored, ok := c.opts.Store.Get(store.KeyTheme); ok && stored != "" {
		theme = stored
	}
	c.applyTheme(theme)
	if stored, ok := c.opts.Store.Get(c.opts.Skin.LogLevelKey); ok {
		c.applyLogLevel(stored)
	}

	if node := c.doc.ByID(ErrorNodeID); node != nil && !node.Hidden() {
		node.SetHidden(true)
	}
	c.loaded = true
	c.logger.Info("page rendered", "observations", len(pd.Observations), "height", c.layout.Height())
}

func (c *Content) announce(first bool) {
	if err := c.win.PostParent(envelope.NewContentResize(c.layout.Height())); err != nil {
		c.logger.Warn("failed to report height", "error", err)
	}
	if !first {
		return
	}
	if err := c.win.PostParent(envelope.NewLoaded()); err != nil {
		c.logger.Warn("failed to report loaded", "error", err)
	}
}

func (c *Content) showError(err error) {
	node := c.doc.ByID(ErrorNodeID)
	node.SetText(err.Error())
	node.SetHidden(false)
	if c.layout == (geometry.Layout{}) {
		c.layout = geometry.DefaultLayout()
	}
}

// handle runs on the content loop for every accepted envelope.
func (c *Content) handle(ev frame.MessageEvent) {
	if ev.Source != nil && ev.Source != c.win.Parent() {
		c.logger.Debug("message from a foreign window dropped", "kind", ev.Envelope.Kind)
		return
	}

	switch msg := ev.Envelope.Message.(type) {
	case envelope.MQTTMessage:
		if !c.loaded {
			c.logger.Debug("mqtt message before page data, dropped", "topic", msg.Topic)
			return
		}
		c.dispatcher.Dispatch(msg.Topic, msg.Payload)
	case envelope.ResizeMessage:
		c.layout.Resized(msg)
		c.logger.Debug("viewport", "width", msg.Width, "height", msg.Height, "chartWidth", c.layout.ChartWidth())
	case envelope.ScrollMessage:
		c.layout.Scrolled(msg)
	case envelope.LogLevelMessage:
		c.applyLogLevel(msg.LogLevel)
		if err := c.opts.Store.Set(c.opts.Skin.LogLevelKey, msg.LogLevel); err != nil {
			c.logger.Warn("failed to persist log level", "error", err)
		}
	default:
		c.handleKind(ev.Envelope)
	}
}

func (c *Content) handleKind(env envelope.Envelope) {
	switch env.Kind {
	case envelope.KindLang:
		lang, _ := env.Message.(string)
		c.dispatcher.SetLanguage(lang)
		if c.forecast {
			c.renderForecast()
		}
	case envelope.KindSetTheme:
		theme, _ := env.Message.(string)
		c.applyTheme(theme)
	case envelope.KindGetLogLevel:
		level := "unset"
		if c.opts.Levels != nil {
			level = c.opts.Levels.Level().String()
		}
		c.logger.Info("log level", "level", level)
	case envelope.KindRefreshData:
		go c.load(c.ctx, true)
	case envelope.KindLog:
		c.logger.Info("log message", "message", env.Message)
	case envelope.KindJasShow:
		data, err := json.Marshal(env.Message)
		if err != nil {
			data = []byte(fmt.Sprint(env.Message))
		}
		node := c.doc.ByID(DebugNodeID)
		node.SetText(string(data))
		node.SetHidden(false)
	default:
		c.logger.Debug("envelope ignored", "kind", env.Kind)
	}
}

func (c *Content) applyTheme(theme string) {
	if theme != envelope.ThemeDark && theme != envelope.ThemeLight {
		c.logger.Warn("unknown theme ignored", "theme", theme)
		return
	}
	if node := c.doc.ByID(RootNodeID); node.Attr(ThemeAttr) != theme {
		node.SetAttr(ThemeAttr, theme)
	}
}

func (c *Content) applyLogLevel(level string) {
	if c.opts.Levels == nil {
		return
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		c.logger.Warn("unknown log level ignored", "level", level)
		return
	}
	c.opts.Levels.Set(l)
}

// renderForecast fills one forecast_<n> node per day and returns the number
// of days shown.
func (c *Content) renderForecast() int {
	if c.opts.ForecastDir == "" {
		return 0
	}
	f, err := forecast.ReadForecast(c.opts.ForecastDir)
	if errors.Is(err, forecast.ErrNoForecast) {
		c.logger.Debug("no forecast yet")
		return 0
	}
	if err != nil {
		c.logger.Warn("forecast unavailable", "error", err)
		return 0
	}
	for i, day := range f.Forecasts {
		node := c.doc.Create(fmt.Sprintf("forecast_%d", i))
		node.SetText(day.Observation)
		node.SetAttr("data-day", day.Day)
		node.SetAttr("data-date", day.Date)
		node.SetAttr("data-temp", c.dispatcher.Format(day.MaxTemp, 0)+"/"+c.dispatcher.Format(day.MinTemp, 0))
		node.SetAttr("data-rain", c.dispatcher.Format(day.Rain, 0)+"%")
		node.SetAttr("data-wind", c.dispatcher.Format(day.MinWind, 0)+"-"+c.dispatcher.Format(day.MaxWind, 0))
	}
	return len(f.Forecasts)
}

// renderSelection shows the stored archive selection, falling back to (and
// storing) the page default.
func (c *Content) renderSelection(selections []string) {
	if len(selections) == 0 {
		return
	}
	selected, ok := c.opts.Store.Get(store.KeyCurrentSelection)
	if !ok || !contains(selections, selected) {
		selected = selections[0]
		if err := c.opts.Store.Set(store.KeyCurrentSelection, selected); err != nil {
			c.logger.Warn("failed to persist selection", "error", err)
		}
	}
	c.doc.Create(SelectionNodeID).SetText(selected)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
