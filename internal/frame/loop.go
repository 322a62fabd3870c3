// Package frame models the browsing contexts of the skin: a single
// threaded event loop per document, windows that exchange envelopes with
// postMessage semantics, and the frame element that hosts the content
// context inside the top-level document.
package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned when posting to a loop that has shut down.
var ErrClosed = errors.New("event loop closed")

// Poster schedules work onto an event loop.
type Poster interface {
	Post(task func()) bool
}

// Loop runs tasks one at a time, in the order they were posted. It is the
// Go stand-in for a document's event loop: everything that touches a
// context's state runs as a task on that context's loop.
type Loop struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

// NewLoop starts a loop goroutine.
func NewLoop(name string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		name:    name,
		logger:  logger.With("loop", name),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

// Name returns the loop name used in logs.
func (l *Loop) Name() string { return l.name }

// Post enqueues task without blocking. It returns false once the loop is
// closed; the task is then dropped.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do posts task and waits for it to finish. It must not be called from a
// task running on the same loop.
func (l *Loop) Do(task func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		task()
	}) {
		return fmt.Errorf("%s: %w", l.name, ErrClosed)
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		// The loop may have drained the task right before stopping.
		select {
		case <-done:
			return nil
		default:
			return fmt.Errorf("%s: %w", l.name, ErrClosed)
		}
	}
}

// Close stops accepting tasks. Tasks already queued are discarded, which
// is how a destroyed document drops its pending work. A task that is
// running when Close is called runs to completion. Close never blocks, so
// it is safe to call from a task on the same loop.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.stopped }

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			<-l.wake
			continue
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.runTask(task)
	}
}

// runTask isolates a panicking task so later events are still processed.
func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
