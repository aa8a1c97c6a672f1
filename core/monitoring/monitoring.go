// Package monitoring is the process-wide error reporting hook. Components
// report through the package functions; the binary installs a concrete
// Monitor (Sentry) at startup.
package monitoring

import (
	"sync"
	"time"
)

// panicFlushTimeout bounds how long a crashing goroutine waits for buffered
// reports before the panic propagates.
const panicFlushTimeout = 2 * time.Second

// Monitor receives errors and panics from long-lived goroutines.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init installs m. A nil m restores the no-op monitor.
func Init(m Monitor) {
	if m == nil {
		m = NopMonitor{}
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func active() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException reports err with tags. A nil err is ignored.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	active().CaptureException(err, tags)
}

// Recover reports a panic of the calling goroutine and panics again. It must
// be deferred directly.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	m := active()
	m.CapturePanic(r)
	m.Flush(panicFlushTimeout)
	panic(r)
}

// Flush waits up to d for buffered reports to be sent.
func Flush(d time.Duration) { active().Flush(d) }
