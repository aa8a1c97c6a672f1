// Package scenarios replays scripted driving sessions against the
// in-process core: gateway, state machine and control loop.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Expect describes the cycle a perception step must produce. Nil fields
// are not checked.
type Expect struct {
	Outcome    string   `yaml:"outcome"`
	SpeedUnits *float64 `yaml:"speed_units,omitempty"`
	SteerDeg   *float64 `yaml:"steer_deg,omitempty"`
	Saturated  *bool    `yaml:"saturated,omitempty"`
}

// Step is one action of a scenario. Exactly one of Mode, Dashboard and
// Perception is set.
type Step struct {
	// Mode is requested directly from the state machine.
	Mode string `yaml:"mode,omitempty"`
	// Dashboard is published on the bus as Dashboard/ModeRequest.
	Dashboard string `yaml:"dashboard,omitempty"`
	// Rejected marks a mode request expected to be refused.
	Rejected bool `yaml:"rejected,omitempty"`
	// Perception is published as Perception/StanleyControl and followed by
	// one control cycle.
	Perception map[string]any `yaml:"perception,omitempty"`
	Expect     *Expect        `yaml:"expect,omitempty"`
}

// Expected is checked once every step has run.
type Expected struct {
	Mode       string `yaml:"mode"`
	Actuations int    `yaml:"actuations"`
}

// Scenario is a scripted session.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tolerance   float64  `yaml:"tolerance,omitempty"`
	Steps       []Step   `yaml:"steps"`
	Expected    Expected `yaml:"expected"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Tolerance == 0 {
		sc.Tolerance = 0.01
	}
	return &sc, nil
}

func (sc Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	for i, st := range sc.Steps {
		set := 0
		if st.Mode != "" {
			set++
		}
		if st.Dashboard != "" {
			set++
		}
		if st.Perception != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("step %d: exactly one of mode, dashboard or perception is required", i)
		}
		if st.Expect != nil && st.Perception == nil {
			return fmt.Errorf("step %d: expect only applies to perception steps", i)
		}
	}
	return nil
}
