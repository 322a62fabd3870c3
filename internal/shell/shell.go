// Package shell is the top-level context: the navigation document, the
// frame that hosts content, the broker connection and the viewport. Every
// public operation is executed on the top loop, so callers on any
// goroutine observe the same ordering a browser page would.
package shell

import (
	"errors"
	"log/slog"

	"code.cloudfoundry.org/clock"

	"github.com/i474232898/weather-skin/internal/broker"
	"github.com/i474232898/weather-skin/internal/config"
	"github.com/i474232898/weather-skin/internal/dom"
	"github.com/i474232898/weather-skin/internal/envelope"
	"github.com/i474232898/weather-skin/internal/frame"
	"github.com/i474232898/weather-skin/internal/geometry"
	"github.com/i474232898/weather-skin/internal/router"
	"github.com/i474232898/weather-skin/internal/store"
)

// FrameID is the id of the content frame element.
const FrameID = "content"

type Options struct {
	Skin    *config.SkinConfig
	Store   store.Store
	Mounter frame.Mounter
	Clock   clock.Clock

	// NewClient overrides the MQTT transport, for tests.
	NewClient broker.ClientFactory

	// Viewport is the initial top window geometry.
	Viewport geometry.Viewport
	Logger   *slog.Logger
}

type Shell struct {
	skin   *config.SkinConfig
	store  store.Store
	loop   *frame.Loop
	win    *frame.Window
	frame  *frame.Element
	doc    *dom.Document
	router *router.Router
	sync   *geometry.Sync
	broker *broker.Manager
	logger *slog.Logger
}

// Snapshot is the observable state of the top-level context.
type Snapshot struct {
	Page       string             `json:"page"`
	Src        string             `json:"src"`
	Hidden     bool               `json:"hidden"`
	Height     int                `json:"height"`
	Generation uint64             `json:"generation"`
	Viewport   geometry.Viewport  `json:"viewport"`
	Broker     broker.Info        `json:"broker"`
	Nodes      []dom.NodeSnapshot `json:"nodes"`
}

func New(opts Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewClock()
	}

	loop := frame.NewLoop("top", logger)
	win := frame.NewWindow("top", loop, opts.Skin.OriginPolicy(), nil, logger)
	el := frame.NewElement(FrameID, win, opts.Mounter, logger)
	doc := dom.NewDocument()

	s := &Shell{
		skin:   opts.Skin,
		store:  opts.Store,
		loop:   loop,
		win:    win,
		frame:  el,
		doc:    doc,
		logger: logger.With("component", "shell"),
	}
	s.router = router.New(opts.Skin, el, doc, opts.Store, opts.Clock, logger)
	s.sync = geometry.NewSync(el, opts.Skin.NavbarHeight, opts.Viewport, logger)
	s.broker = broker.NewManager(broker.OptionsFromConfig(opts.Skin.MQTT), broker.Deps{
		Loop:      loop,
		Store:     opts.Store,
		Clock:     opts.Clock,
		Forward:   s.forward,
		NewClient: opts.NewClient,
		Logger:    logger,
	})

	el.Observe(func(c frame.Change) {
		s.logger.Debug("frame changed", "field", c.Field, "value", c.Value)
	})
	win.OnMessage(s.handle)
	return s
}

// Load starts the page: the stored or landing content is shown and the
// broker connection is opened when enabled.
func (s *Shell) Load() error {
	return s.do(func() error {
		if err := s.router.Start(); err != nil {
			return err
		}
		if !s.skin.MQTT.Enable {
			return nil
		}
		if err := s.broker.Connect(); err != nil {
			s.logger.Warn("broker connect refused", "error", err)
		}
		return nil
	})
}

// Unload closes the broker connection and destroys the content.
func (s *Shell) Unload() error {
	return s.do(func() error {
		s.broker.Disconnect()
		s.frame.Teardown()
		return nil
	})
}

// Close unloads and stops the top loop.
func (s *Shell) Close() {
	if err := s.Unload(); err != nil && !errors.Is(err, frame.ErrClosed) {
		s.logger.Warn("unload failed", "error", err)
	}
	s.loop.Close()
}

func (s *Shell) Navigate(name string) error {
	return s.do(func() error { return s.router.Navigate(name) })
}

func (s *Shell) SetActiveContent(address string, addQueryString bool) error {
	return s.do(func() error { return s.router.SetActiveContent(address, addQueryString) })
}

// SetLanguage persists lang and relabels the content.
func (s *Shell) SetLanguage(lang string) error {
	return s.persistAndSend(store.KeyCurrentLanguage, lang, envelope.NewLang(lang))
}

func (s *Shell) SetTheme(theme string) error {
	return s.persistAndSend(store.KeyTheme, theme, envelope.NewTheme(theme))
}

func (s *Shell) SetLogLevel(level string) error {
	return s.persistAndSend(s.skin.LogLevelKey, level, envelope.NewSetLogLevel(level))
}

func (s *Shell) GetLogLevel() error { return s.send(envelope.NewGetLogLevel()) }

// RefreshData asks the content to reload its page data.
func (s *Shell) RefreshData() error { return s.send(envelope.NewRefreshData()) }

func (s *Shell) Log(v any) error { return s.send(envelope.NewLog(v)) }

// Show displays v in the content debug node.
func (s *Shell) Show(v any) error { return s.send(envelope.NewJasShow(v)) }

func (s *Shell) Connect() error {
	return s.do(s.broker.Connect)
}

func (s *Shell) Disconnect() error {
	return s.do(func() error {
		s.broker.Disconnect()
		return nil
	})
}

func (s *Shell) WindowResized(width, height int) error {
	return s.do(func() error { return s.sync.WindowResized(width, height) })
}

func (s *Shell) Scrolled(scrollY int) error {
	return s.do(func() error { return s.sync.Scrolled(scrollY) })
}

func (s *Shell) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = Snapshot{
			Page:       s.router.Current(),
			Src:        s.frame.Src(),
			Hidden:     s.frame.Hidden(),
			Height:     s.frame.Height(),
			Generation: s.frame.Generation(),
			Viewport:   s.sync.Viewport(),
			Broker:     s.broker.Info(),
			Nodes:      s.doc.Snapshot(),
		}
		return nil
	})
	return snap, err
}

// Broker returns the connection manager.
func (s *Shell) Broker() *broker.Manager { return s.broker }

func (s *Shell) Document() *dom.Document { return s.doc }

// LogLevelKey is the store key the log level is persisted under.
func (s *Shell) LogLevelKey() string { return s.skin.LogLevelKey }

func (s *Shell) Frame() *frame.Element { return s.frame }

// handle runs on the top loop for every envelope delivered to the top
// window.
func (s *Shell) handle(ev frame.MessageEvent) {
	if ev.Source == s.win {
		// addressed to content while none was mounted
		s.logger.Debug("self-addressed envelope ignored", "kind", ev.Envelope.Kind)
		return
	}
	if !s.frame.IsCurrent(ev.Source) {
		s.logger.Debug("envelope from stale content ignored", "kind", ev.Envelope.Kind)
		return
	}

	switch ev.Envelope.Kind {
	case envelope.KindLoaded:
		if s.router.ContentLoaded(ev.Source) {
			if err := s.sync.PushResize(); err != nil {
				s.logger.Warn("failed to push viewport", "error", err)
			}
			if err := s.sync.PushScroll(); err != nil {
				s.logger.Warn("failed to push scroll", "error", err)
			}
		}
	case envelope.KindResize:
		if msg, ok := ev.Envelope.Message.(envelope.ContentResizeMessage); ok {
			s.sync.ApplyContentHeight(msg.Height)
		}
	default:
		s.logger.Debug("envelope ignored", "kind", ev.Envelope.Kind)
	}
}

// forward hands a broker message to whatever content is mounted now.
func (s *Shell) forward(env envelope.Envelope) {
	if err := s.frame.Send(env); err != nil {
		s.logger.Warn("failed to forward broker message", "error", err)
	}
}

func (s *Shell) persistAndSend(key, value string, env envelope.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	return s.do(func() error {
		if err := s.store.Set(key, value); err != nil {
			return err
		}
		return s.frame.Send(env)
	})
}

func (s *Shell) send(env envelope.Envelope) error {
	return s.do(func() error { return s.frame.Send(env) })
}

func (s *Shell) do(fn func() error) error {
	var err error
	if doErr := s.loop.Do(func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}
