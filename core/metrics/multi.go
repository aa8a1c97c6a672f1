package metrics

import "github.com/ewolf/brain/core/messages"

// MultiSink fanouts records to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDelivery forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDelivery(ev DeliveryEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDelivery(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordDrop forwards drop events.
func (m *MultiSink) RecordDrop(ev DropEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDrop(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordDeadLetter forwards dead letters.
func (m *MultiSink) RecordDeadLetter(key messages.Key) error {
	for _, s := range m.Sinks {
		if err := s.RecordDeadLetter(key); err != nil {
			return err
		}
	}
	return nil
}

// RecordCycle forwards control cycle outcomes.
func (m *MultiSink) RecordCycle(outcome string) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(outcome); err != nil {
			return err
		}
	}
	return nil
}

// RecordActuation forwards actuation events.
func (m *MultiSink) RecordActuation(ev ActuationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordActuation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordModeChange forwards mode changes when supported by the sink.
func (m *MultiSink) RecordModeChange(ev ModeChangeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ModeChangeRecorder); ok {
			if err := rec.RecordModeChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBusStats forwards gateway snapshots when supported by the sink.
func (m *MultiSink) RecordBusStats(st messages.BusStats) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(BusStatsRecorder); ok {
			if err := rec.RecordBusStats(st); err != nil {
				return err
			}
		}
	}
	return nil
}
