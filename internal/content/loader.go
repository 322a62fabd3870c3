// Package content is the embedded page context. A Loader mounts one
// Content per frame navigation; the Content fetches its page data, renders
// cached and declared observations and then reacts to envelopes from the
// top-level context.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/i474232898/weather-skin/internal/config"
	"github.com/i474232898/weather-skin/internal/dispatch"
	"github.com/i474232898/weather-skin/internal/dom"
	"github.com/i474232898/weather-skin/internal/frame"
	"github.com/i474232898/weather-skin/internal/i18n"
	"github.com/i474232898/weather-skin/internal/store"
)

// Node ids every page carries besides its observations.
const (
	RootNodeID      = "html"
	DebugNodeID     = "jasShow"
	ErrorNodeID     = "pageError"
	SelectionNodeID = "currentSelection"

	// ThemeAttr is set on the root node.
	ThemeAttr = "data-theme"
)

// Options configures a Loader.
type Options struct {
	Skin     *config.SkinConfig
	Source   PageSource
	Store    store.Store
	Catalog  *i18n.Catalog
	Location *time.Location

	// ForecastDir holds forecast.json; empty disables forecast sections.
	ForecastDir string

	// Levels is the process log level changed by setLogLevel. Nil leaves
	// the level alone.
	Levels *slog.LevelVar
	Logger *slog.Logger
}

// Loader implements frame.Mounter.
type Loader struct {
	opts   Options
	fields *dispatch.TopicFieldMap
	logger *slog.Logger

	mu      sync.Mutex
	current *Content
}

func NewLoader(opts Options) *Loader {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		opts:   opts,
		fields: dispatch.NewTopicFieldMap(opts.Skin.MQTT.FieldMap()),
		logger: opts.Logger,
	}
}

// Mount creates the content window for req.Src and starts loading its page
// data in the background. Loading stops when ctx is cancelled.
func (l *Loader) Mount(ctx context.Context, req frame.MountRequest) (*frame.Window, error) {
	page := PageName(req.Src)
	if page == "" || page == "." || page == "/" {
		return nil, fmt.Errorf("no page in %q", req.Src)
	}

	name := fmt.Sprintf("content:%s#%d", page, req.Generation)
	logger := l.logger.With("page", page, "generation", req.Generation)
	loop := frame.NewLoop(name, logger)
	win := frame.NewWindow(name, loop, l.opts.Skin.OriginPolicy(), req.Parent, logger)

	c := newContent(ctx, page, win, l.opts, l.fields, logger)
	win.OnMessage(c.handle)

	l.mu.Lock()
	l.current = c
	l.mu.Unlock()

	go c.load(ctx, false)
	return win, nil
}

// Current returns the most recently mounted content, or nil.
func (l *Loader) Current() *Content {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func newContent(ctx context.Context, page string, win *frame.Window, opts Options, fields *dispatch.TopicFieldMap, logger *slog.Logger) *Content {
	doc := dom.NewDocument()
	doc.Create(RootNodeID)
	doc.Create(opts.Skin.HeaderNodeID)
	doc.Create(opts.Skin.LastUpdatedNodeID)
	doc.Create(DebugNodeID).SetHidden(true)
	doc.Create(ErrorNodeID).SetHidden(true)

	lang := opts.Skin.DefaultLanguage
	if stored, ok := opts.Store.Get(store.KeyCurrentLanguage); ok && stored != "" {
		lang = stored
	}

	c := &Content{
		ctx:    ctx,
		page:   page,
		win:    win,
		doc:    doc,
		opts:   opts,
		logger: logger.With("component", "content"),
	}
	c.dispatcher = dispatch.New(dispatch.Options{
		Document:          doc,
		Store:             opts.Store,
		Fields:            fields,
		Catalog:           opts.Catalog,
		Location:          opts.Location,
		Logger:            logger,
		Header:            opts.Skin.Header,
		HeaderNodeID:      opts.Skin.HeaderNodeID,
		TimestampField:    opts.Skin.TimestampField,
		LastUpdatedNodeID: opts.Skin.LastUpdatedNodeID,
	}, lang)
	return c
}
