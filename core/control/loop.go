package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ewolf/brain/core/logger"
	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/core/monitoring"
	"github.com/ewolf/brain/core/statemachine"
	infralog "github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/internal/eventbus"
)

// SubscriberID is the bus endpoint name of the loop.
const SubscriberID = "control"

// CycleResult describes what one cycle did.
type CycleResult struct {
	// Outcome is one of the metrics.Cycle* values.
	Outcome      string
	Status       messages.ControlStatus
	SpeedUnits   float64
	SteerDegrees float64
}

// Actuated reports whether the cycle published actuator commands.
func (r CycleResult) Actuated() bool { return r.Outcome == coremetrics.CycleActuated }

// Loop is the lane keeping control loop.
type Loop struct {
	cfg    Config
	law    Stanley
	sender *eventbus.Sender
	sub    *eventbus.Subscriber
	log    logger.Logger
	rec    coremetrics.ControlRecorder

	mode       string
	window     []float64
	actuations uint64
	skipped    uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l logger.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r coremetrics.ControlRecorder) LoopOption {
	return func(lp *Loop) {
		if r != nil {
			lp.rec = r
		}
	}
}

// NewLoop creates the loop and subscribes it, Latest, to the mode
// broadcast and the perception error.
func NewLoop(gw *eventbus.Gateway, cfg Config, opts ...LoopOption) (*Loop, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop{
		cfg:    cfg,
		law:    cfg.Stanley(),
		sender: eventbus.NewSender(gw, messages.OwnerControl),
		sub:    eventbus.NewSubscriber(gw, SubscriberID),
		log:    infralog.New("control"),
		rec:    coremetrics.NopSink{},
		mode:   statemachine.Manual.String(),
	}
	for _, o := range opts {
		o(l)
	}
	for _, k := range []messages.Key{messages.StateChange, messages.StanleyControl} {
		if err := l.sub.Subscribe(k, eventbus.Latest); err != nil {
			return nil, fmt.Errorf("control: %w", err)
		}
	}
	return l, nil
}

// Mode returns the cached driving mode.
func (l *Loop) Mode() string { return l.mode }

// Cycle runs one control step. It actuates only when the cached mode is
// AUTO and a perception error arrived since the previous cycle. Perception
// received while not in AUTO is discarded.
func (l *Loop) Cycle() (CycleResult, error) {
	state, ok, err := l.sub.Get(messages.StateChange)
	if err != nil {
		return CycleResult{}, err
	}
	if ok {
		if name, isString := state.(string); isString {
			if name != l.mode {
				l.log.Infof("mode %s -> %s", l.mode, name)
			}
			l.mode = name
		} else {
			l.log.Warnf("ignoring state change of type %T", state)
		}
	}

	raw, fresh, err := l.sub.Get(messages.StanleyControl)
	if err != nil {
		return CycleResult{}, err
	}
	if l.mode != statemachine.Auto.String() {
		return l.skip(coremetrics.CycleStandby), nil
	}
	if !fresh {
		return l.skip(coremetrics.CycleNoPerception), nil
	}
	pe, err := DecodePerception(raw)
	if err != nil {
		return l.skip(coremetrics.CycleMalformed), err
	}
	return l.actuate(pe)
}

func (l *Loop) skip(outcome string) CycleResult {
	if outcome != coremetrics.CycleNoPerception {
		l.skipped++
	}
	if err := l.rec.RecordCycle(outcome); err != nil {
		l.log.Debugf("record cycle: %v", err)
	}
	return CycleResult{Outcome: outcome}
}

func (l *Loop) actuate(pe messages.PerceptionError) (CycleResult, error) {
	rawSteer, steer := l.law.Steer(pe.EY, pe.ThetaE, pe.Speed)
	res := CycleResult{
		Outcome:      coremetrics.CycleActuated,
		SpeedUnits:   SpeedUnits(pe.Speed, l.cfg.SpeedScale),
		SteerDegrees: Degrees(steer),
	}
	if err := l.sender.Publish(messages.SpeedMotor, messages.ActuatorCommand{Value: res.SpeedUnits}); err != nil {
		return res, fmt.Errorf("publish speed: %w", err)
	}
	if err := l.sender.Publish(messages.SteerMotor, messages.ActuatorCommand{Value: res.SteerDegrees}); err != nil {
		return res, fmt.Errorf("publish steer: %w", err)
	}
	l.actuations++

	l.window = append(l.window, pe.EY)
	if len(l.window) > l.cfg.StatsWindow {
		l.window = l.window[len(l.window)-l.cfg.StatsWindow:]
	}
	mean, std := l.window[0], 0.0
	if len(l.window) > 1 {
		mean, std = stat.MeanStdDev(l.window, nil)
	}
	res.Status = messages.ControlStatus{
		EY:         pe.EY,
		ThetaE:     pe.ThetaE,
		SteerRaw:   rawSteer,
		Steer:      steer,
		Saturated:  steer != rawSteer,
		Speed:      pe.Speed,
		MeanEY:     mean,
		StdDevEY:   std,
		Actuations: l.actuations,
		Skipped:    l.skipped,
		Time:       time.Now(),
	}
	if err := l.sender.Publish(messages.ControlStatusKind, res.Status); err != nil {
		l.log.Debugf("publish status: %v", err)
	}
	if err := l.rec.RecordCycle(res.Outcome); err != nil {
		l.log.Debugf("record cycle: %v", err)
	}
	if err := l.rec.RecordActuation(coremetrics.ActuationEvent{Status: res.Status, SpeedUnits: res.SpeedUnits, SteerDegrees: res.SteerDegrees}); err != nil {
		l.log.Debugf("record actuation: %v", err)
	}
	l.log.Debugw("actuated", map[string]any{
		"e_y":       pe.EY,
		"theta_e":   pe.ThetaE,
		"steer_deg": res.SteerDegrees,
		"speed":     res.SpeedUnits,
		"saturated": res.Status.Saturated,
	})
	return res, nil
}

// Run cycles until ctx is cancelled, pausing after every cycle that did not
// actuate. Cycle errors are logged and the loop continues. The endpoint is
// closed on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.sub.Close(); err != nil {
			l.log.Warnf("close endpoint: %v", err)
		}
	}()
	l.log.Infof("control loop started (k=%.2f ks=%.2f max_steer=%.1fdeg)", l.cfg.K, l.cfg.Softening(), l.cfg.MaxSteerDeg)

	timer := time.NewTimer(l.cfg.IdleWait())
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := l.Cycle()
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformedPerception):
			l.log.Warnf("cycle skipped: %v", err)
		case errors.Is(err, eventbus.ErrGatewayStopped):
			l.log.Warnf("bus stopped: %v", err)
			return nil
		case errors.Is(err, messages.ErrEndpointClosed):
			return err
		default:
			l.log.Errorf("cycle: %v", err)
			monitoring.CaptureException(err, map[string]string{"component": "control"})
		}
		if res.Actuated() {
			continue
		}
		timer.Reset(l.cfg.IdleWait())
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
