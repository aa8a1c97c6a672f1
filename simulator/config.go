package simulator

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulated vehicle.
type Config struct {
	Enabled bool `json:"enabled"`
	// PeriodMS is the wall-clock interval between perception frames.
	PeriodMS int `json:"period_ms"`
	// StepS is the simulated time advanced per frame, in seconds.
	StepS float64 `json:"step_s"`
	// Wheelbase of the kinematic bicycle model, in metres.
	Wheelbase float64 `json:"wheelbase"`
	// TargetSpeed is the advisory speed reported with every frame.
	TargetSpeed float64 `json:"target_speed"`
	// SpeedScale converts motor units back to metres per second.
	SpeedScale     float64 `json:"speed_scale"`
	InitialOffset  float64 `json:"initial_offset"`
	InitialHeading float64 `json:"initial_heading"`
	// Noise is the standard deviation added to the reported e_y.
	Noise float64 `json:"noise"`
	Seed  uint64  `json:"seed"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.PeriodMS == 0 {
		c.PeriodMS = 20
	}
	if c.StepS == 0 {
		c.StepS = float64(c.PeriodMS) / 1000
	}
	if c.Wheelbase == 0 {
		c.Wheelbase = 0.26
	}
	if c.TargetSpeed == 0 {
		c.TargetSpeed = 0.3
	}
	if c.SpeedScale == 0 {
		c.SpeedScale = 300
	}
}

// Validate checks the parameters are physically meaningful.
func (c Config) Validate() error {
	if c.PeriodMS <= 0 {
		return fmt.Errorf("simulator: period_ms must be positive")
	}
	if c.StepS <= 0 {
		return fmt.Errorf("simulator: step_s must be positive")
	}
	if c.Wheelbase <= 0 {
		return fmt.Errorf("simulator: wheelbase must be positive")
	}
	if c.TargetSpeed < 0 {
		return fmt.Errorf("simulator: target_speed must not be negative")
	}
	if c.SpeedScale <= 0 {
		return fmt.Errorf("simulator: speed_scale must be positive")
	}
	if c.Noise < 0 {
		return fmt.Errorf("simulator: noise must not be negative")
	}
	return nil
}

// Period is the wall-clock interval between frames.
func (c Config) Period() time.Duration {
	return time.Duration(c.PeriodMS) * time.Millisecond
}
