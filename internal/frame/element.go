package frame

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/i474232898/weather-skin/internal/envelope"
)

// MountRequest describes one content load.
type MountRequest struct {
	Src        string
	Parent     *Window
	Generation uint64
}

// Mounter creates the content context for a src. Mount must return quickly;
// slow work (fetching page data) continues asynchronously and must stop when
// ctx is cancelled, which happens the moment the frame navigates elsewhere.
type Mounter interface {
	Mount(ctx context.Context, req MountRequest) (*Window, error)
}

// Change is reported to element observers.
type Change struct {
	Field string // "src", "hidden" or "height"
	Value string
}

// Element is the frame element embedded in the top-level document.
type Element struct {
	id      string
	owner   *Window
	mounter Mounter
	logger  *slog.Logger

	mu         sync.Mutex
	src        string
	hidden     bool
	height     int
	generation uint64
	content    *Window
	cancel     context.CancelFunc
	observers  []func(Change)
}

func NewElement(id string, owner *Window, mounter Mounter, logger *slog.Logger) *Element {
	if logger == nil {
		logger = slog.Default()
	}
	return &Element{
		id:      id,
		owner:   owner,
		mounter: mounter,
		logger:  logger.With("frame", id),
	}
}

func (e *Element) ID() string { return e.id }

// Observe registers fn for every change of src, visibility or height.
func (e *Element) Observe(fn func(Change)) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// SetSrc navigates the frame. The previous content context is destroyed
// first: its context is cancelled and its loop closed, so nothing it had in
// flight can reach the new content.
func (e *Element) SetSrc(src string) error {
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.teardownLocked()
	e.generation++
	gen := e.generation
	e.src = src
	e.cancel = cancel
	e.mu.Unlock()
	e.notify(Change{Field: "src", Value: src})

	win, err := e.mounter.Mount(ctx, MountRequest{Src: src, Parent: e.owner, Generation: gen})
	if err != nil {
		cancel()
		return fmt.Errorf("mount %s: %w", src, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		win.Close()
		return nil
	}
	e.content = win
	e.logger.Debug("content mounted", "src", src, "generation", gen)
	return nil
}

// Teardown destroys the current content context, leaving the frame empty.
func (e *Element) Teardown() {
	e.mu.Lock()
	e.teardownLocked()
	e.generation++
	e.mu.Unlock()
}

func (e *Element) teardownLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.content != nil {
		e.content.Close()
		e.content = nil
	}
}

// ContentWindow returns the mounted content window, or nil.
func (e *Element) ContentWindow() *Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

// IsCurrent reports whether w is the content window currently mounted.
func (e *Element) IsCurrent(w *Window) bool {
	if w == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content == w
}

// Send targets env at exactly one recipient: the mounted content window,
// or the owning window itself when nothing is mounted.
func (e *Element) Send(env envelope.Envelope) error {
	if w := e.ContentWindow(); w != nil {
		return w.PostMessage(env, e.owner.TargetOrigin(), e.owner)
	}
	return e.owner.PostSelf(env)
}

func (e *Element) Src() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *Element) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *Element) Hide() { e.setHidden(true) }

func (e *Element) Show() { e.setHidden(false) }

func (e *Element) Hidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

func (e *Element) setHidden(hidden bool) {
	e.mu.Lock()
	changed := e.hidden != hidden
	e.hidden = hidden
	e.mu.Unlock()
	if changed {
		e.notify(Change{Field: "hidden", Value: strconv.FormatBool(hidden)})
	}
}

// SetHeight sets the style height in pixels. Width is left to the page.
func (e *Element) SetHeight(px int) {
	e.mu.Lock()
	e.height = px
	e.mu.Unlock()
	e.notify(Change{Field: "height", Value: strconv.Itoa(px)})
}

func (e *Element) Height() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

func (e *Element) notify(c Change) {
	e.mu.Lock()
	observers := slices.Clone(e.observers)
	e.mu.Unlock()
	for _, fn := range observers {
		fn(c)
	}
}
