// Package router decides which page the frame shows. It keeps the
// navigation bar in sync, persists the choice in the session store and
// hides the frame until the new content reports that it has loaded.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"code.cloudfoundry.org/clock"

	"github.com/i474232898/weather-skin/internal/config"
	"github.com/i474232898/weather-skin/internal/dom"
	"github.com/i474232898/weather-skin/internal/frame"
	"github.com/i474232898/weather-skin/internal/store"
)

var (
	ErrNoLanding   = errors.New("no landing page: no enabled primary navigation entry")
	ErrUnknownPage = errors.New("unknown navigation entry")
)

const (
	// ActiveClass marks the navigation node of the page on display.
	ActiveClass = "active"

	// ControlsNodeID is the broker connect/disconnect control group.
	ControlsNodeID = "mqttControls"

	// CacheBustParam is the query parameter added when a page must not be
	// served from cache.
	CacheBustParam = "ts"
)

// Router must only be used from the top-level loop.
type Router struct {
	skin   *config.SkinConfig
	frame  *frame.Element
	doc    *dom.Document
	store  store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// New creates the router and the navigation nodes of every enabled entry.
func New(skin *config.SkinConfig, el *frame.Element, doc *dom.Document, st store.Store, clk clock.Clock, logger *slog.Logger) *Router {
	if clk == nil {
		clk = clock.NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, e := range skin.Navigation {
		if e.Enabled {
			doc.Create(e.Name)
		}
	}
	doc.Create(ControlsNodeID).SetHidden(true)
	return &Router{
		skin:   skin,
		frame:  el,
		doc:    doc,
		store:  st,
		clock:  clk,
		logger: logger.With("component", "router"),
	}
}

// SetActiveContent shows address in the frame. When address differs from
// the stored current page, the active marker moves and the new address and
// flag are persisted. The frame is always hidden and reloaded.
func (r *Router) SetActiveContent(address string, addQueryString bool) error {
	current, _ := r.store.Get(store.KeyCurrentPage)
	if address != current {
		if node := r.navNode(current); node != nil {
			node.RemoveClass(ActiveClass)
		}
		if err := r.store.Set(store.KeyCurrentPage, address); err != nil {
			return fmt.Errorf("persist current page: %w", err)
		}
		if err := store.SetBool(r.store, store.KeyAddQueryString, addQueryString); err != nil {
			return fmt.Errorf("persist query string flag: %w", err)
		}
		r.markActive(address)
	}

	r.frame.Hide()
	r.updateControls(address)

	src := address
	if addQueryString {
		src += "?" + CacheBustParam + "=" + strconv.FormatInt(r.clock.Now().UnixMilli(), 10)
	}
	r.logger.Debug("activating content", "address", address, "src", src)
	return r.frame.SetSrc(src)
}

// ContentLoaded reveals the frame when source is the content currently
// mounted. It reports false for a window that has since been replaced.
func (r *Router) ContentLoaded(source *frame.Window) bool {
	if !r.frame.IsCurrent(source) {
		r.logger.Debug("loaded from stale content ignored")
		return false
	}
	r.frame.Show()
	return true
}

// Start selects the initial content: the persisted page when there is one,
// otherwise the landing page.
func (r *Router) Start() error {
	if address, ok := r.store.Get(store.KeyCurrentPage); ok && address != "" {
		r.markActive(address)
		return r.SetActiveContent(address, store.GetBool(r.store, store.KeyAddQueryString))
	}
	entry, err := r.Landing()
	if err != nil {
		return err
	}
	return r.SetActiveContent(r.skin.Address(entry.Name), entry.AddQueryString)
}

// Landing returns the configured landing entry, or the first enabled
// primary entry in declared order.
func (r *Router) Landing() (config.NavEntry, error) {
	if r.skin.Landing != "" {
		if e, ok := r.skin.Entry(r.skin.Landing); ok {
			return e, nil
		}
		return config.NavEntry{}, fmt.Errorf("%w: %s", ErrUnknownPage, r.skin.Landing)
	}
	for _, e := range r.skin.Navigation {
		if e.Enabled && e.Primary {
			return e, nil
		}
	}
	return config.NavEntry{}, ErrNoLanding
}

// Navigate activates the navigation entry called name. The diagnostic page
// is reachable even when it has no navigation entry.
func (r *Router) Navigate(name string) error {
	if e, ok := r.skin.Entry(name); ok && e.Enabled {
		return r.SetActiveContent(r.skin.Address(name), e.AddQueryString)
	}
	if name != "" && name == r.skin.DiagnosticPage {
		return r.SetActiveContent(r.skin.DiagnosticAddress(), true)
	}
	return fmt.Errorf("%w: %s", ErrUnknownPage, name)
}

// Current returns the persisted page address.
func (r *Router) Current() string {
	address, _ := r.store.Get(store.KeyCurrentPage)
	return address
}

func (r *Router) markActive(address string) {
	if node := r.navNode(address); node != nil {
		node.AddClass(ActiveClass)
	}
}

func (r *Router) updateControls(address string) {
	node := r.doc.ByID(ControlsNodeID)
	if node == nil {
		return
	}
	hidden := address != r.skin.DiagnosticAddress() || r.skin.DiagnosticPage == ""
	if node.Hidden() != hidden {
		node.SetHidden(hidden)
	}
}

func (r *Router) navNode(address string) *dom.Node {
	if address == "" {
		return nil
	}
	for _, e := range r.skin.Navigation {
		if r.skin.Address(e.Name) == address {
			return r.doc.ByID(e.Name)
		}
	}
	return nil
}
