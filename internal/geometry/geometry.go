// Package geometry keeps the frame sized to its content and tells the
// content about the top window's viewport. Neither side reads the other's
// layout directly; all geometry travels in resize and scroll envelopes.
package geometry

import (
	"log/slog"
	"sync"

	"github.com/i474232898/weather-skin/internal/envelope"
	"github.com/i474232898/weather-skin/internal/frame"
)

// Viewport of the top window, in pixels.
type Viewport struct {
	Width   int `json:"width" validate:"gte=0"`
	Height  int `json:"height" validate:"gte=0"`
	ScrollY int `json:"scrollY" validate:"gte=0"`
}

// Sync is the top-level side.
type Sync struct {
	frame        *frame.Element
	navbarHeight int
	logger       *slog.Logger

	mu       sync.Mutex
	viewport Viewport
}

func NewSync(el *frame.Element, navbarHeight int, initial Viewport, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync{
		frame:        el,
		navbarHeight: navbarHeight,
		viewport:     initial,
		logger:       logger.With("component", "geometry"),
	}
}

func (s *Sync) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// ApplyContentHeight sizes the frame to the height content reported.
func (s *Sync) ApplyContentHeight(height int) {
	s.frame.SetHeight(height)
}

// PushResize sends the usable viewport (below the navigation bar) to the
// content.
func (s *Sync) PushResize() error {
	vp := s.Viewport()
	height := vp.Height - s.navbarHeight
	if height < 0 {
		height = 0
	}
	return s.frame.Send(envelope.NewResize(vp.Width, height))
}

// PushScroll sends the scroll position and navigation bar offset.
func (s *Sync) PushScroll() error {
	return s.frame.Send(envelope.NewScroll(s.navbarHeight, s.Viewport().ScrollY))
}

// WindowResized records a new window size and forwards it.
func (s *Sync) WindowResized(width, height int) error {
	s.mu.Lock()
	s.viewport.Width, s.viewport.Height = width, height
	s.mu.Unlock()
	s.logger.Debug("window resized", "width", width, "height", height)
	return s.PushResize()
}

// Scrolled records a new scroll offset and forwards it.
func (s *Sync) Scrolled(scrollY int) error {
	s.mu.Lock()
	s.viewport.ScrollY = scrollY
	s.mu.Unlock()
	return s.PushScroll()
}
