package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recordMonitor struct {
	err     error
	tags    map[string]string
	panicV  any
	flushed bool
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(v any)  { r.panicV = v }
func (r *recordMonitor) Flush(time.Duration) { r.flushed = true }

func TestCaptureException(t *testing.T) {
	mon := &recordMonitor{}
	Init(mon)
	defer Init(NopMonitor{})

	CaptureException(nil, nil)
	if mon.err != nil {
		t.Fatalf("nil error must not be captured")
	}
	CaptureException(errors.New("boom"), map[string]string{"component": "gateway"})
	if mon.err == nil || mon.tags["component"] != "gateway" {
		t.Fatalf("error not captured: %+v", mon)
	}
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	mon := &recordMonitor{}
	Init(mon)
	defer Init(NopMonitor{})

	defer func() {
		r := recover()
		if r != "routing failed" {
			t.Fatalf("expected re-panic, got %v", r)
		}
		if mon.panicV != "routing failed" || !mon.flushed {
			t.Fatalf("panic not reported: %+v", mon)
		}
	}()
	func() {
		defer Recover()
		panic("routing failed")
	}()
}

func TestInitNilRestoresNop(t *testing.T) {
	mon := &recordMonitor{}
	Init(mon)
	Init(nil)
	CaptureException(errors.New("dropped"), nil)
	Flush(time.Millisecond)
	if mon.err != nil || mon.flushed {
		t.Fatalf("replaced monitor still receives reports: %+v", mon)
	}
}
