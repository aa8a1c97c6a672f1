package messages

import "time"

// PerceptionError is the lane tracking error published by perception.
type PerceptionError struct {
	// EY is the lateral (cross-track) error.
	EY float64 `json:"e_y" mapstructure:"e_y"`
	// ThetaE is the heading error in radians.
	ThetaE float64 `json:"theta_e" mapstructure:"theta_e"`
	// Speed is the advisory target speed.
	Speed float64 `json:"speed" mapstructure:"speed"`
}

// ActuatorCommand carries a value already converted to the actuator's
// native unit.
type ActuatorCommand struct {
	Value float64 `json:"value"`
}

// ControlStatus is the telemetry emitted by the control loop on every
// actuation.
type ControlStatus struct {
	EY         float64   `json:"e_y"`
	ThetaE     float64   `json:"theta_e"`
	SteerRaw   float64   `json:"steer_raw_rad"`
	Steer      float64   `json:"steer_rad"`
	Saturated  bool      `json:"saturated"`
	Speed      float64   `json:"speed"`
	MeanEY     float64   `json:"mean_e_y"`
	StdDevEY   float64   `json:"stddev_e_y"`
	Actuations uint64    `json:"actuations"`
	Skipped    uint64    `json:"skipped"`
	Time       time.Time `json:"time"`
}

// BusStats is the gateway telemetry snapshot.
type BusStats struct {
	Subscriptions int       `json:"subscriptions"`
	Delivered     uint64    `json:"delivered"`
	Dropped       uint64    `json:"dropped"`
	DeadLetters   uint64    `json:"dead_letters"`
	Time          time.Time `json:"time"`
}
