package control

import (
	"fmt"
	"time"
)

// Config holds the controller tuning.
type Config struct {
	K float64 `json:"k"`
	// Ks is the softening constant. Nil means unset; an explicit 0 is kept.
	Ks          *float64 `json:"ks"`
	MaxSteerDeg float64  `json:"max_steer_deg"`
	// SpeedScale converts advisory speed to motor units.
	SpeedScale float64 `json:"speed_scale"`
	IdleWaitMS int     `json:"idle_wait_ms"`
	// StatsWindow is the number of recent e_y samples summarised in
	// ControlStatus.
	StatsWindow int `json:"stats_window"`
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.K == 0 {
		c.K = 0.55
	}
	if c.Ks == nil {
		ks := 0.1
		c.Ks = &ks
	}
	if c.MaxSteerDeg == 0 {
		c.MaxSteerDeg = 25
	}
	if c.SpeedScale == 0 {
		c.SpeedScale = 300
	}
	if c.IdleWaitMS == 0 {
		c.IdleWaitMS = 10
	}
	if c.StatsWindow == 0 {
		c.StatsWindow = 50
	}
}

// Validate checks the tuning is usable.
func (c Config) Validate() error {
	if c.K <= 0 {
		return fmt.Errorf("control: k must be positive")
	}
	if c.Softening() < 0 {
		return fmt.Errorf("control: ks must not be negative")
	}
	if c.MaxSteerDeg <= 0 || c.MaxSteerDeg > 90 {
		return fmt.Errorf("control: max_steer_deg must be in (0, 90], got %v", c.MaxSteerDeg)
	}
	if c.SpeedScale <= 0 {
		return fmt.Errorf("control: speed_scale must be positive")
	}
	if c.IdleWaitMS <= 0 {
		return fmt.Errorf("control: idle_wait_ms must be positive")
	}
	if c.StatsWindow <= 0 {
		return fmt.Errorf("control: stats_window must be positive")
	}
	return nil
}

// Stanley returns the steering law for the configuration.
func (c Config) Stanley() Stanley {
	return Stanley{K: c.K, Ks: c.Softening(), MaxSteer: Radians(c.MaxSteerDeg)}
}

// Softening returns Ks, or 0 when it is unset.
func (c Config) Softening() float64 {
	if c.Ks == nil {
		return 0
	}
	return *c.Ks
}

// IdleWait is the pause after a cycle that did not actuate.
func (c Config) IdleWait() time.Duration {
	return time.Duration(c.IdleWaitMS) * time.Millisecond
}
