package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/i474232898/weather-skin/internal/envelope"
)

// MessageEvent is what a window's handler receives for each delivered
// envelope.
type MessageEvent struct {
	Envelope envelope.Envelope
	Origin   string
	Source   *Window
}

// Handler processes delivered envelopes on the receiving window's loop.
type Handler func(MessageEvent)

// Window is one browsing context: its loop, its origin policy and the
// handler its document registered for messages.
type Window struct {
	name   string
	loop   *Loop
	policy envelope.OriginPolicy
	parent *Window
	logger *slog.Logger

	mu      sync.RWMutex
	handler Handler
}

// NewWindow creates a window around loop. parent is nil for the top-level
// window.
func NewWindow(name string, loop *Loop, policy envelope.OriginPolicy, parent *Window, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	return &Window{
		name:   name,
		loop:   loop,
		policy: policy,
		parent: parent,
		logger: logger.With("window", name),
	}
}

func (w *Window) Name() string { return w.name }

func (w *Window) Loop() *Loop { return w.loop }

func (w *Window) Parent() *Window { return w.parent }

// Origin is the origin inbound receivers see for messages from w.
func (w *Window) Origin() string { return w.policy.Origin() }

// TargetOrigin is the targetOrigin w uses when posting.
func (w *Window) TargetOrigin() string { return w.policy.Target() }

// OnMessage replaces the message handler.
func (w *Window) OnMessage(h Handler) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

// PostMessage queues env for delivery to w. The envelope is serialized at
// the call so later mutations by the sender are never observed by the
// receiver. Delivery is fire-and-forget: a target origin mismatch drops the
// message without telling the sender, as browsers do.
func (w *Window) PostMessage(env envelope.Envelope, targetOrigin string, source *Window) error {
	data, err := envelope.Marshal(env)
	if err != nil {
		return fmt.Errorf("post %s to %s: %w", env.Kind, w.name, err)
	}
	if !w.policy.Matches(targetOrigin) {
		w.logger.Debug("target origin mismatch, message dropped", "kind", env.Kind, "target", targetOrigin)
		return nil
	}

	origin := "null"
	if source != nil {
		origin = source.Origin()
	}
	if !w.loop.Post(func() { w.deliver(data, origin, source) }) {
		return fmt.Errorf("post %s to %s: %w", env.Kind, w.name, ErrClosed)
	}
	return nil
}

// PostSelf delivers env to w as if w had posted it to itself.
func (w *Window) PostSelf(env envelope.Envelope) error {
	return w.PostMessage(env, w.TargetOrigin(), w)
}

// PostParent sends env to the parent window, if any.
func (w *Window) PostParent(env envelope.Envelope) error {
	if w.parent == nil {
		return w.PostSelf(env)
	}
	return w.parent.PostMessage(env, w.TargetOrigin(), w)
}

// Close destroys the window's loop; queued deliveries are dropped.
func (w *Window) Close() { w.loop.Close() }

// Closed reports whether the window has been destroyed.
func (w *Window) Closed() bool { return w.loop.Closed() }

func (w *Window) deliver(data []byte, origin string, source *Window) {
	if !w.policy.Accept(origin) {
		w.logger.Debug("origin not accepted, message dropped", "origin", origin)
		return
	}
	env, err := envelope.Unmarshal(data)
	if err != nil {
		if !errors.Is(err, envelope.ErrUnknownKind) {
			w.logger.Warn("undecodable message dropped", "error", err)
		}
		return
	}

	w.mu.RLock()
	h := w.handler
	w.mu.RUnlock()
	if h == nil {
		return
	}
	h(MessageEvent{Envelope: env, Origin: origin, Source: source})
}
