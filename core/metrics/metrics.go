package metrics

import (
	"time"

	"github.com/ewolf/brain/core/messages"
)

// DeliveryEvent is recorded when the gateway routes an envelope.
type DeliveryEvent struct {
	Key         messages.Key
	Class       messages.Class
	Subscribers int
}

// Drop reasons.
const (
	DropBufferFull = "buffer_full"
	DropEvicted    = "evicted"
)

// DropEvent is recorded when an envelope does not reach a destination.
type DropEvent struct {
	Key          messages.Key
	SubscriberID string
	Mode         string
	Reason       string
}

// BusRecorder records gateway routing activity.
type BusRecorder interface {
	RecordDelivery(ev DeliveryEvent) error
	RecordDrop(ev DropEvent) error
	RecordDeadLetter(key messages.Key) error
}

// Cycle outcomes of the control loop.
const (
	CycleActuated     = "actuated"
	CycleStandby      = "standby"
	CycleNoPerception = "no_perception"
	CycleMalformed    = "malformed"
)

// ActuationEvent captures one actuation of the control loop.
type ActuationEvent struct {
	Status       messages.ControlStatus
	SpeedUnits   float64
	SteerDegrees float64
}

// ControlRecorder records control loop cycles.
type ControlRecorder interface {
	RecordCycle(outcome string) error
	RecordActuation(ev ActuationEvent) error
}

// MetricsSink is implemented by every sink.
type MetricsSink interface {
	BusRecorder
	ControlRecorder
}

// ModeChangeEvent records a driving mode transition.
type ModeChangeEvent struct {
	From string
	To   string
	Time time.Time
}

// ModeChangeRecorder is implemented by sinks able to record mode changes.
type ModeChangeRecorder interface {
	RecordModeChange(ev ModeChangeEvent) error
}

// BusStatsRecorder is implemented by sinks exposing gateway snapshots.
type BusStatsRecorder interface {
	RecordBusStats(st messages.BusStats) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordDelivery(DeliveryEvent) error     { return nil }
func (NopSink) RecordDrop(DropEvent) error             { return nil }
func (NopSink) RecordDeadLetter(messages.Key) error    { return nil }
func (NopSink) RecordCycle(string) error               { return nil }
func (NopSink) RecordActuation(ActuationEvent) error   { return nil }
func (NopSink) RecordModeChange(ModeChangeEvent) error { return nil }
func (NopSink) RecordBusStats(messages.BusStats) error { return nil }
