package frame

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-skin/internal/envelope"
)

var trusted = envelope.OriginPolicy{DocumentURL: "file:///srv/jas/index.html", Trusted: true}

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop("test", nil)
	defer loop.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		loop.Post(func() { got = append(got, i) })
	}
	if err := loop.Do(func() {}); err != nil {
		t.Fatalf("do: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, got %d", len(got))
	}
}

func TestLoopSurvivesPanickingTask(t *testing.T) {
	loop := NewLoop("test", nil)
	defer loop.Close()

	loop.Post(func() { panic("boom") })
	ran := false
	if err := loop.Do(func() { ran = true }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !ran {
		t.Fatal("task after panic did not run")
	}
}

func TestLoopClosedRejectsPosts(t *testing.T) {
	loop := NewLoop("test", nil)
	loop.Close()
	if loop.Post(func() {}) {
		t.Fatal("post succeeded on closed loop")
	}
	if err := loop.Do(func() {}); err == nil {
		t.Fatal("expected error from Do on closed loop")
	}
	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop goroutine did not exit")
	}
}

type recorder struct {
	mu     sync.Mutex
	events []MessageEvent
	seen   chan struct{}
}

func newRecorder() *recorder { return &recorder{seen: make(chan struct{}, 64)} }

func (r *recorder) handle(ev MessageEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []MessageEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MessageEvent(nil), r.events...)
}

func TestPostMessageFIFOFromOneSender(t *testing.T) {
	top := NewWindow("top", NewLoop("top", nil), trusted, nil, nil)
	child := NewWindow("child", NewLoop("child", nil), trusted, top, nil)
	defer top.Close()
	defer child.Close()

	rec := newRecorder()
	child.OnMessage(rec.handle)

	for i := 1; i <= 10; i++ {
		if err := child.PostMessage(envelope.NewScroll(56, i), envelope.Wildcard, top); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	events := rec.wait(t, 10)
	for i, ev := range events {
		msg := ev.Envelope.Message.(envelope.ScrollMessage)
		if msg.CurrentScroll != i+1 {
			t.Fatalf("message %d out of order: %d", i, msg.CurrentScroll)
		}
		if ev.Source != top {
			t.Fatalf("unexpected source %v", ev.Source)
		}
	}
}

func TestPostMessageTargetOriginMismatchDrops(t *testing.T) {
	policy := envelope.OriginPolicy{DocumentURL: "https://wx.example/index.html"}
	w := NewWindow("w", NewLoop("w", nil), policy, nil, nil)
	defer w.Close()

	rec := newRecorder()
	w.OnMessage(rec.handle)

	if err := w.PostMessage(envelope.NewLoaded(), "https://other.example", nil); err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := w.PostSelf(envelope.NewRefreshData()); err != nil {
		t.Fatalf("post self: %v", err)
	}
	events := rec.wait(t, 1)
	if len(events) != 1 || events[0].Envelope.Kind != envelope.KindRefreshData {
		t.Fatalf("unexpected deliveries: %+v", events)
	}
}

type windowMounter struct {
	mu      sync.Mutex
	windows []*Window
	ctxs    []context.Context
}

func (m *windowMounter) Mount(ctx context.Context, req MountRequest) (*Window, error) {
	w := NewWindow(req.Src, NewLoop(req.Src, nil), trusted, req.Parent, nil)
	m.mu.Lock()
	m.windows = append(m.windows, w)
	m.ctxs = append(m.ctxs, ctx)
	m.mu.Unlock()
	return w, nil
}

func TestElementSwapDestroysPreviousContent(t *testing.T) {
	top := NewWindow("top", NewLoop("top", nil), trusted, nil, nil)
	defer top.Close()
	mounter := &windowMounter{}
	el := NewElement("content", top, mounter, nil)

	if err := el.SetSrc("pages/day.html"); err != nil {
		t.Fatalf("set src: %v", err)
	}
	first := el.ContentWindow()
	if err := el.SetSrc("pages/week.html"); err != nil {
		t.Fatalf("set src: %v", err)
	}

	if !first.Closed() {
		t.Fatal("previous content window still alive")
	}
	if mounter.ctxs[0].Err() == nil {
		t.Fatal("previous content context not cancelled")
	}
	if el.IsCurrent(first) {
		t.Fatal("stale window reported as current")
	}
	if el.Generation() != 2 {
		t.Fatalf("expected generation 2, got %d", el.Generation())
	}
	if err := first.PostMessage(envelope.NewLoaded(), envelope.Wildcard, top); err == nil {
		t.Fatal("expected posting to a destroyed window to fail")
	}
}

func TestElementSendTargetsContentOrSelf(t *testing.T) {
	top := NewWindow("top", NewLoop("top", nil), trusted, nil, nil)
	defer top.Close()
	topRec := newRecorder()
	top.OnMessage(topRec.handle)

	el := NewElement("content", top, &windowMounter{}, nil)

	if err := el.Send(envelope.NewLang("en")); err != nil {
		t.Fatalf("send: %v", err)
	}
	events := topRec.wait(t, 1)
	if events[0].Envelope.Kind != envelope.KindLang {
		t.Fatalf("self delivery got %s", events[0].Envelope.Kind)
	}

	if err := el.SetSrc("pages/day.html"); err != nil {
		t.Fatalf("set src: %v", err)
	}
	contentRec := newRecorder()
	el.ContentWindow().OnMessage(contentRec.handle)
	if err := el.Send(envelope.NewTheme("dark")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := contentRec.wait(t, 1)
	if got[0].Envelope.Message != "dark" {
		t.Fatalf("content got %#v", got[0].Envelope)
	}
}

func TestElementObserversSeeVisibilityChanges(t *testing.T) {
	top := NewWindow("top", NewLoop("top", nil), trusted, nil, nil)
	defer top.Close()
	el := NewElement("content", top, &windowMounter{}, nil)

	var changes []Change
	el.Observe(func(c Change) { changes = append(changes, c) })

	el.Hide()
	el.Hide()
	el.SetHeight(420)
	el.Show()

	want := []Change{{"hidden", "true"}, {"height", "420"}, {"hidden", "false"}}
	if len(changes) != len(want) {
		t.Fatalf("got %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("change %d: got %v, want %v", i, changes[i], want[i])
		}
	}
}
