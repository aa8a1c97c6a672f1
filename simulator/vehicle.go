// Package simulator stands in for the perception pipeline and the motor
// hardware. A kinematic bicycle follows the speed and steer commands of the
// control loop and reports its lane tracking error back on the bus.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ewolf/brain/core/control"
	"github.com/ewolf/brain/core/logger"
	"github.com/ewolf/brain/core/messages"
	infralog "github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/internal/eventbus"
)

// SubscriberID is the bus endpoint name of the simulated hardware.
const SubscriberID = "simulator"

// State is the pose of the vehicle relative to the lane centre.
type State struct {
	// Y is the lateral offset in metres, positive to the left.
	Y float64
	// Psi is the heading relative to the lane in radians.
	Psi float64
	// V is the current speed in metres per second.
	V float64
	// Steer is the current wheel angle in radians.
	Steer float64
	// T is the simulated time in seconds.
	T float64
}

// Vehicle is the simulated car.
type Vehicle struct {
	cfg    Config
	sender *eventbus.Sender
	sub    *eventbus.Subscriber
	log    logger.Logger
	noise  *distuv.Normal

	mu    sync.Mutex
	state State
}

// Option configures a Vehicle.
type Option func(*Vehicle)

// WithLogger sets the vehicle logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Vehicle) {
		if l != nil {
			v.log = l
		}
	}
}

// NewVehicle creates the vehicle and subscribes it to the motor commands.
func NewVehicle(gw *eventbus.Gateway, cfg Config, opts ...Option) (*Vehicle, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &Vehicle{
		cfg:    cfg,
		sender: eventbus.NewSender(gw, messages.OwnerPerception),
		sub:    eventbus.NewSubscriber(gw, SubscriberID),
		log:    infralog.New("simulator"),
		state:  State{Y: cfg.InitialOffset, Psi: cfg.InitialHeading},
	}
	if cfg.Noise > 0 {
		v.noise = &distuv.Normal{Mu: 0, Sigma: cfg.Noise, Src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)}
	}
	for _, o := range opts {
		o(v)
	}
	for _, k := range []messages.Key{messages.SpeedMotor, messages.SteerMotor} {
		if err := v.sub.Subscribe(k, eventbus.FIFO); err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
	}
	return v, nil
}

// State returns the current pose.
func (v *Vehicle) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Apply consumes every pending motor command. It returns how many were
// applied.
func (v *Vehicle) Apply() (int, error) {
	n := 0
	for {
		env, ok, err := v.sub.ReceiveEnvelope()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		cmd, isCmd := env.Value.(messages.ActuatorCommand)
		if !isCmd {
			v.log.Warnf("ignoring %s of type %T", env.Key(), env.Value)
			continue
		}
		v.mu.Lock()
		switch env.Key() {
		case messages.SpeedMotor:
			v.state.V = cmd.Value / v.cfg.SpeedScale
		case messages.SteerMotor:
			v.state.Steer = control.Radians(cmd.Value)
		}
		v.mu.Unlock()
		n++
	}
}

// Step integrates the kinematic bicycle over dt seconds. A positive wheel
// angle turns toward the right, back to the lane centre when Y is positive.
func (v *Vehicle) Step(dt float64) State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := &v.state
	s.Y += s.V * math.Sin(s.Psi) * dt
	s.Psi -= s.V / v.cfg.Wheelbase * math.Tan(s.Steer) * dt
	s.Psi = math.Atan2(math.Sin(s.Psi), math.Cos(s.Psi))
	s.T += dt
	return *s
}

// Observe returns the tracking error a camera would report for the
// current pose.
func (v *Vehicle) Observe() messages.PerceptionError {
	st := v.State()
	ey := st.Y
	if v.noise != nil {
		ey += v.noise.Rand()
	}
	return messages.PerceptionError{EY: ey, ThetaE: st.Psi, Speed: v.cfg.TargetSpeed}
}

// Publish sends the current observation as Perception/StanleyControl.
func (v *Vehicle) Publish() error {
	return v.sender.Publish(messages.StanleyControl, v.Observe())
}

// Run applies commands, advances the model and publishes a frame every
// period until ctx is cancelled.
func (v *Vehicle) Run(ctx context.Context) error {
	defer func() {
		if err := v.sub.Close(); err != nil {
			v.log.Warnf("close endpoint: %v", err)
		}
	}()
	ticker := time.NewTicker(v.cfg.Period())
	defer ticker.Stop()
	v.log.Infof("simulated vehicle started at offset %.3f m", v.cfg.InitialOffset)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := v.Apply(); err != nil {
				return fmt.Errorf("simulator: %w", err)
			}
			st := v.Step(v.cfg.StepS)
			if err := v.Publish(); err != nil {
				if errors.Is(err, eventbus.ErrGatewayStopped) {
					return nil
				}
				return fmt.Errorf("simulator: %w", err)
			}
			v.log.Debugw("frame", map[string]any{"t": st.T, "y": st.Y, "psi": st.Psi, "v": st.V})
		}
	}
}
