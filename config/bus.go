package config

import (
	"fmt"
	"time"
)

// BusConfig sizes the message bus.
type BusConfig struct {
	// LineCapacity is the buffer of every gateway ingress line.
	LineCapacity int `json:"line_capacity"`
	// EndpointCapacity is the destination buffer of every subscriber.
	EndpointCapacity int `json:"endpoint_capacity"`
	// StatsIntervalMS is the period of Gateway/BusStats. Zero disables it.
	StatsIntervalMS int `json:"stats_interval_ms"`
}

// SetDefaults fills zero fields.
func (c *BusConfig) SetDefaults() {
	if c.LineCapacity == 0 {
		c.LineCapacity = 1024
	}
	if c.EndpointCapacity == 0 {
		c.EndpointCapacity = 256
	}
}

// Validate checks the capacities are usable.
func (c BusConfig) Validate() error {
	if c.LineCapacity <= 0 {
		return fmt.Errorf("bus: line_capacity must be positive")
	}
	if c.EndpointCapacity <= 0 {
		return fmt.Errorf("bus: endpoint_capacity must be positive")
	}
	if c.StatsIntervalMS < 0 {
		return fmt.Errorf("bus: stats_interval_ms must not be negative")
	}
	return nil
}

// StatsInterval is the BusStats period.
func (c BusConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMS) * time.Millisecond
}

// StateMachineConfig paces the driving-mode state machine.
type StateMachineConfig struct {
	IdleWaitMS int `json:"idle_wait_ms"`
}

// SetDefaults fills zero fields.
func (c *StateMachineConfig) SetDefaults() {
	if c.IdleWaitMS == 0 {
		c.IdleWaitMS = 10
	}
}

// Validate checks the pacing is usable.
func (c StateMachineConfig) Validate() error {
	if c.IdleWaitMS <= 0 {
		return fmt.Errorf("statemachine: idle_wait_ms must be positive")
	}
	return nil
}

// IdleWait is the pause between empty polls of the bus.
func (c StateMachineConfig) IdleWait() time.Duration {
	return time.Duration(c.IdleWaitMS) * time.Millisecond
}
