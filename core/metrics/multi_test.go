package metrics

import (
	"testing"

	"github.com/ewolf/brain/core/messages"
)

type recordSink struct {
	NopSink
	count int
}

func (r *recordSink) RecordDelivery(DeliveryEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordActuation(ActuationEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordModeChange(ModeChangeEvent) error {
	r.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordDelivery(DeliveryEvent{Key: messages.SpeedMotor}); err != nil {
		t.Fatalf("record delivery: %v", err)
	}
	if err := m.RecordActuation(ActuationEvent{}); err != nil {
		t.Fatalf("record actuation: %v", err)
	}
	if err := m.RecordModeChange(ModeChangeEvent{From: "MANUAL", To: "AUTO"}); err != nil {
		t.Fatalf("record mode: %v", err)
	}
	if s1.count != 3 || s2.count != 3 {
		t.Fatalf("records not forwarded: %d %d", s1.count, s2.count)
	}
}

func TestMultiSinkSkipsModeChangeWhenUnsupported(t *testing.T) {
	m := NewMultiSink(plainSink{})
	if err := m.RecordModeChange(ModeChangeEvent{To: "AUTO"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type plainSink struct{}

func (plainSink) RecordDelivery(DeliveryEvent) error   { return nil }
func (plainSink) RecordDrop(DropEvent) error           { return nil }
func (plainSink) RecordDeadLetter(messages.Key) error  { return nil }
func (plainSink) RecordCycle(string) error             { return nil }
func (plainSink) RecordActuation(ActuationEvent) error { return nil }
