package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is a driving mode. Names are case sensitive.
type Mode string

const (
	Manual Mode = "MANUAL"
	Auto   Mode = "AUTO"
	// Stop is the emergency stop: like Manual the control loop stays idle.
	Stop Mode = "STOP"
)

// Modes lists every accepted mode.
var Modes = []Mode{Manual, Auto, Stop}

// ErrInvalidMode is returned for a name outside Modes.
var ErrInvalidMode = errors.New("invalid driving mode")

func (m Mode) String() string { return string(m) }

// ParseMode validates name against Modes.
func ParseMode(name string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, ErrInvalidMode)
}

// NormalizeRequest strips the dashboard_<mode>_button wrapper sent by the
// operator UI. Other names are returned unchanged.
func NormalizeRequest(name string) string {
	const prefix, suffix = "dashboard_", "_button"
	if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) && len(name) > len(prefix)+len(suffix) {
		return name[len(prefix) : len(name)-len(suffix)]
	}
	return name
}
