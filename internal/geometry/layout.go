package geometry

import "github.com/i474232898/weather-skin/internal/envelope"

// Layout is the content side: it derives the page height from what the
// page shows and remembers the last geometry the top sent.
type Layout struct {
	Padding     int `json:"padding"`
	RowHeight   int `json:"rowHeight"`
	ChartHeight int `json:"chartHeight"`

	Rows   int `json:"-"`
	Charts int `json:"charts"`

	viewport envelope.ResizeMessage
	scroll   envelope.ScrollMessage
}

// DefaultLayout is used when page data carries no layout block.
func DefaultLayout() Layout {
	return Layout{Padding: 16, RowHeight: 32, ChartHeight: 300}
}

// Height is the content height in pixels.
func (l *Layout) Height() int {
	return 2*l.Padding + l.Rows*l.RowHeight + l.Charts*l.ChartHeight
}

// ChartWidth is the width available to a chart in the current viewport, or
// zero before the top has sent one.
func (l *Layout) ChartWidth() int {
	if l.viewport.Width == 0 {
		return 0
	}
	if w := l.viewport.Width - 2*l.Padding; w > 0 {
		return w
	}
	return 0
}

func (l *Layout) Resized(m envelope.ResizeMessage) { l.viewport = m }

func (l *Layout) Scrolled(m envelope.ScrollMessage) { l.scroll = m }

func (l *Layout) Viewport() envelope.ResizeMessage { return l.viewport }

func (l *Layout) Scroll() envelope.ScrollMessage { return l.scroll }
