package statemachine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/internal/eventbus"
)

type modeRecorder struct {
	mu     sync.Mutex
	events []coremetrics.ModeChangeEvent
}

func (r *modeRecorder) RecordModeChange(ev coremetrics.ModeChangeEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *modeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type harness struct {
	gw      *eventbus.Gateway
	machine *Machine
	watcher *eventbus.Subscriber
	rec     *modeRecorder
}

func start(t *testing.T) *harness {
	t.Helper()
	reg, err := messages.Catalogue()
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	gw := eventbus.NewGateway(reg, eventbus.WithLogger(logger.NopLogger{}))
	watcher := eventbus.NewSubscriber(gw, "watcher")
	if err := watcher.Subscribe(messages.StateChange, eventbus.FIFO); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec := &modeRecorder{}
	m, err := New(gw, WithLogger(logger.NopLogger{}), WithRecorder(rec), WithIdleWait(time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = gw.Run(ctx) }()
	go func() {
		defer wg.Done()
		if err := m.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return &harness{gw: gw, machine: m, watcher: watcher, rec: rec}
}

// nextState polls the watcher until a StateChange arrives.
func (h *harness) nextState(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		v, ok, err := eventbus.ReceiveAs[string](h.watcher)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if ok {
			return v
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no state change received")
	return ""
}

func TestInitialStateIsManual(t *testing.T) {
	h := start(t)
	if got := h.nextState(t); got != "MANUAL" {
		t.Fatalf("initial broadcast = %q", got)
	}
	if h.machine.Current() != Manual {
		t.Fatalf("current = %s", h.machine.Current())
	}
}

func TestRequestModeBroadcasts(t *testing.T) {
	h := start(t)
	h.nextState(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := h.machine.RequestMode(ctx, "AUTO")
	if err != nil || got != Auto {
		t.Fatalf("request AUTO = %s, %v", got, err)
	}
	if s := h.nextState(t); s != "AUTO" {
		t.Fatalf("broadcast = %q", s)
	}
	if h.machine.Current() != Auto {
		t.Fatalf("current = %s", h.machine.Current())
	}
	if h.rec.count() != 1 {
		t.Fatalf("recorded %d transitions", h.rec.count())
	}
}

func TestInvalidRequestLeavesModeUnchanged(t *testing.T) {
	h := start(t)
	h.nextState(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, name := range []string{"auto", "TURBO", ""} {
		got, err := h.machine.RequestMode(ctx, name)
		if !errors.Is(err, ErrInvalidMode) {
			t.Fatalf("%q: expected ErrInvalidMode, got %v", name, err)
		}
		if got != Manual {
			t.Fatalf("%q: mode = %s", name, got)
		}
	}
	pending, err := h.watcher.HasPending()
	if err != nil {
		t.Fatalf("has pending: %v", err)
	}
	if pending {
		t.Fatal("invalid requests must not be broadcast")
	}
}

func TestBusModeRequest(t *testing.T) {
	h := start(t)
	h.nextState(t)

	dash := eventbus.NewSender(h.gw, messages.OwnerDashboard)
	if err := dash.Publish(messages.ModeRequest, "bogus"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := dash.Publish(messages.ModeRequest, 42); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := dash.Publish(messages.ModeRequest, "dashboard_AUTO_button"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s := h.nextState(t); s != "AUTO" {
		t.Fatalf("broadcast = %q", s)
	}
	if err := dash.Publish(messages.ModeRequest, "STOP"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if s := h.nextState(t); s != "STOP" {
		t.Fatalf("broadcast = %q", s)
	}
	if h.machine.Current() != Stop {
		t.Fatalf("current = %s", h.machine.Current())
	}
}

func TestRequestAfterStop(t *testing.T) {
	reg, err := messages.Catalogue()
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	gw := eventbus.NewGateway(reg, eventbus.WithLogger(logger.NopLogger{}))
	m, err := New(gw, WithLogger(logger.NopLogger{}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := m.RequestMode(context.Background(), "AUTO"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestNormalizeRequest(t *testing.T) {
	cases := map[string]string{
		"dashboard_AUTO_button":   "AUTO",
		"dashboard_MANUAL_button": "MANUAL",
		"AUTO":                    "AUTO",
		"dashboard__button":       "dashboard__button",
		"dashboard_AUTO":          "dashboard_AUTO",
	}
	for in, want := range cases {
		if got := NormalizeRequest(in); got != want {
			t.Errorf("NormalizeRequest(%q) = %q want %q", in, got, want)
		}
	}
}
