// Package statemachine owns the driving mode of the vehicle.
//
// The Machine is the only writer of the mode. Requests arrive either on the
// bus as Dashboard/ModeRequest envelopes or through RequestMode; every valid
// request is broadcast as a StateMachine/StateChange envelope.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ewolf/brain/core/logger"
	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/core/monitoring"
	infralog "github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/internal/eventbus"
)

// ErrStopped is returned by RequestMode once the machine has exited.
var ErrStopped = errors.New("state machine stopped")

// SubscriberID is the bus endpoint name of the machine.
const SubscriberID = "statemachine"

const defaultIdleWait = 10 * time.Millisecond

type request struct {
	name  string
	reply chan result
}

type result struct {
	mode Mode
	err  error
}

// Machine is the driving-mode state machine.
type Machine struct {
	sender *eventbus.Sender
	sub    *eventbus.Subscriber
	log    logger.Logger
	rec    coremetrics.ModeChangeRecorder
	idle   time.Duration

	requests chan request
	done     chan struct{}

	// mode is owned by the Run goroutine; current mirrors it for readers.
	mode    Mode
	current atomic.Value
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRecorder records every mode transition.
func WithRecorder(r coremetrics.ModeChangeRecorder) Option {
	return func(m *Machine) {
		if r != nil {
			m.rec = r
		}
	}
}

// WithIdleWait sets the pause between empty polls of the bus.
func WithIdleWait(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.idle = d
		}
	}
}

// New creates the machine and subscribes it to mode requests. The mode is
// Manual until Run applies a request.
func New(gw *eventbus.Gateway, opts ...Option) (*Machine, error) {
	m := &Machine{
		sender:   eventbus.NewSender(gw, messages.OwnerStateMachine),
		sub:      eventbus.NewSubscriber(gw, SubscriberID),
		log:      infralog.New("statemachine"),
		rec:      coremetrics.NopSink{},
		idle:     defaultIdleWait,
		requests: make(chan request),
		done:     make(chan struct{}),
		mode:     Manual,
	}
	for _, o := range opts {
		o(m)
	}
	m.current.Store(Manual)
	if err := m.sub.Subscribe(messages.ModeRequest, eventbus.FIFO); err != nil {
		return nil, fmt.Errorf("statemachine: %w", err)
	}
	return m, nil
}

// Current returns the mode last applied by the machine.
func (m *Machine) Current() Mode { return m.current.Load().(Mode) }

// RequestMode asks the machine to switch to name and waits for the outcome.
// An invalid name returns ErrInvalidMode and the unchanged mode.
func (m *Machine) RequestMode(ctx context.Context, name string) (Mode, error) {
	req := request{name: name, reply: make(chan result, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return m.Current(), ErrStopped
	case <-ctx.Done():
		return m.Current(), ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.mode, res.err
	case <-ctx.Done():
		return m.Current(), ctx.Err()
	}
}

// Run broadcasts the initial mode and serves requests until ctx is
// cancelled. The bus endpoint is closed on exit.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.done)
	defer func() {
		if err := m.sub.Close(); err != nil {
			m.log.Warnf("close endpoint: %v", err)
		}
	}()

	if err := m.publish(m.mode); err != nil {
		return fmt.Errorf("statemachine: initial state: %w", err)
	}
	m.log.Infof("driving mode %s", m.mode)

	timer := time.NewTimer(m.idle)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if m.pollBus() {
			continue
		}
		timer.Reset(m.idle)
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.requests:
			mode, err := m.apply(req.name)
			req.reply <- result{mode: mode, err: err}
		case <-timer.C:
		}
	}
}

// pollBus applies every pending direct and bus request. It reports whether
// anything was handled.
func (m *Machine) pollBus() bool {
	worked := false
	select {
	case req := <-m.requests:
		mode, err := m.apply(req.name)
		req.reply <- result{mode: mode, err: err}
		worked = true
	default:
	}
	for {
		v, ok, err := m.sub.Receive()
		if err != nil {
			m.log.Errorf("receive mode request: %v", err)
			return worked
		}
		if !ok {
			return worked
		}
		worked = true
		name, isString := v.(string)
		if !isString {
			m.log.Warnf("ignoring mode request of type %T", v)
			continue
		}
		if _, err := m.apply(name); err != nil && !errors.Is(err, ErrInvalidMode) {
			monitoring.CaptureException(err, map[string]string{"component": "statemachine"})
		}
	}
}

func (m *Machine) apply(name string) (Mode, error) {
	next, err := ParseMode(NormalizeRequest(name))
	if err != nil {
		m.log.Warnf("rejected mode request: %v", err)
		return m.mode, err
	}
	prev := m.mode
	m.mode = next
	m.current.Store(next)
	if prev != next {
		m.log.Infow("driving mode changed", map[string]any{"from": prev.String(), "to": next.String()})
		if err := m.rec.RecordModeChange(coremetrics.ModeChangeEvent{From: prev.String(), To: next.String(), Time: time.Now()}); err != nil {
			m.log.Debugf("record mode change: %v", err)
		}
	}
	if err := m.publish(next); err != nil {
		return next, fmt.Errorf("broadcast %s: %w", next, err)
	}
	return next, nil
}

func (m *Machine) publish(mode Mode) error {
	return m.sender.Publish(messages.StateChange, mode.String())
}
