// Package control implements the Stanley lane keeping controller.
//
// The Loop gates actuation on the driving mode broadcast by the state
// machine and only ever acts on a perception error observed since its
// previous cycle.
package control

import "math"

// Stanley is the steering law delta = thetaE + atan2(K*ey, v+Ks).
type Stanley struct {
	// K is the convergence gain.
	K float64
	// Ks softens the correction at low speed.
	Ks float64
	// MaxSteer is the servo limit in radians.
	MaxSteer float64
}

// Steer returns the raw steering angle and the angle clamped to the servo
// limit, both in radians.
func (s Stanley) Steer(ey, thetaE, v float64) (raw, clamped float64) {
	raw = thetaE + math.Atan2(s.K*ey, v+s.Ks)
	clamped = math.Max(-s.MaxSteer, math.Min(s.MaxSteer, raw))
	return raw, clamped
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// SpeedUnits converts an advisory speed to the motor's native scale,
// truncating toward zero.
func SpeedUnits(v, scale float64) float64 { return math.Trunc(v * scale) }
