package scenarios

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ewolf/brain/core/control"
	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/core/statemachine"
	"github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/infra/metrics"
	"github.com/ewolf/brain/internal/eventbus"
)

// routeWatch counts routed envelopes per kind. The gateway records a
// delivery only after every destination has been handed the envelope.
type routeWatch struct {
	coremetrics.NopSink
	mu     sync.Mutex
	routed map[messages.Key]int
}

func (w *routeWatch) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	w.mu.Lock()
	w.routed[ev.Key]++
	w.mu.Unlock()
	return nil
}

func (w *routeWatch) count(k messages.Key) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.routed[k]
}

func (w *routeWatch) wait(t *testing.T, k messages.Key, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return w.count(k) >= n }, 2*time.Second, time.Millisecond, "%s not routed", k)
}

// RunScenario wires a gateway, a state machine and a control loop, then
// plays the steps of sc. The control loop is cycled by the runner so every
// perception step maps to exactly one cycle.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg, err := messages.Catalogue()
	require.NoError(t, err)
	promReg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(promReg)
	require.NoError(t, err)
	watch := &routeWatch{routed: make(map[messages.Key]int)}

	nop := logger.NopLogger{}
	gw := eventbus.NewGateway(reg, eventbus.WithLogger(nop), eventbus.WithRecorder(coremetrics.NewMultiSink(sink, watch)))
	sm, err := statemachine.New(gw, statemachine.WithLogger(nop), statemachine.WithRecorder(sink), statemachine.WithIdleWait(time.Millisecond))
	require.NoError(t, err)
	loop, err := control.NewLoop(gw, control.Config{}, control.WithLogger(nop), control.WithRecorder(sink))
	require.NoError(t, err)
	dashboard := eventbus.NewSender(gw, messages.OwnerDashboard)
	perception := eventbus.NewSender(gw, messages.OwnerPerception)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gw.Run(gctx) })
	g.Go(func() error { return sm.Run(gctx) })
	defer func() {
		cancel()
		if err := g.Wait(); err != nil {
			t.Errorf("scenario %s: %v", sc.Name, err)
		}
	}()
	watch.wait(t, messages.StateChange, 1)

	for i, st := range sc.Steps {
		switch {
		case st.Mode != "":
			before := watch.count(messages.StateChange)
			_, err := sm.RequestMode(ctx, st.Mode)
			if st.Rejected {
				if !errors.Is(err, statemachine.ErrInvalidMode) {
					t.Fatalf("step %d: mode %q: expected rejection, got %v", i, st.Mode, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("step %d: mode %q: %v", i, st.Mode, err)
			}
			watch.wait(t, messages.StateChange, before+1)

		case st.Dashboard != "":
			beforeReq := watch.count(messages.ModeRequest)
			beforeState := watch.count(messages.StateChange)
			require.NoError(t, dashboard.Publish(messages.ModeRequest, st.Dashboard))
			watch.wait(t, messages.ModeRequest, beforeReq+1)
			if st.Rejected {
				// A refused request leaves no trace on the bus.
				time.Sleep(20 * time.Millisecond)
				if got := watch.count(messages.StateChange); got != beforeState {
					t.Fatalf("step %d: dashboard %q: unexpected state broadcast", i, st.Dashboard)
				}
				continue
			}
			watch.wait(t, messages.StateChange, beforeState+1)

		default:
			before := watch.count(messages.StanleyControl)
			require.NoError(t, perception.Publish(messages.StanleyControl, st.Perception))
			watch.wait(t, messages.StanleyControl, before+1)
			res, err := loop.Cycle()
			if err != nil && !errors.Is(err, control.ErrMalformedPerception) {
				t.Fatalf("step %d: cycle: %v", i, err)
			}
			if st.Expect != nil {
				checkCycle(t, i, sc.Tolerance, *st.Expect, res)
			}
		}
	}

	if sc.Expected.Mode != "" {
		if got := sm.Current().String(); got != sc.Expected.Mode {
			t.Errorf("scenario %s expected mode %s, got %s", sc.Name, sc.Expected.Mode, got)
		}
		if sc.Expected.Mode != statemachine.Manual.String() {
			if v := gatheredSum(t, promReg, "driving_mode", sc.Expected.Mode); v != 1 {
				t.Errorf("scenario %s: driving_mode{mode=%q} = %v", sc.Name, sc.Expected.Mode, v)
			}
		}
	}
	if got := int(gatheredSum(t, promReg, "control_actuations_total", "")); got != sc.Expected.Actuations {
		t.Errorf("scenario %s expected %d actuations, got %d", sc.Name, sc.Expected.Actuations, got)
	}
}

func checkCycle(t *testing.T, step int, tol float64, want Expect, got control.CycleResult) {
	t.Helper()
	if want.Outcome != "" && got.Outcome != want.Outcome {
		t.Fatalf("step %d: outcome %s, want %s", step, got.Outcome, want.Outcome)
	}
	if want.SpeedUnits != nil && got.SpeedUnits != *want.SpeedUnits {
		t.Errorf("step %d: speed %v, want %v", step, got.SpeedUnits, *want.SpeedUnits)
	}
	if want.SteerDeg != nil && math.Abs(got.SteerDegrees-*want.SteerDeg) > tol {
		t.Errorf("step %d: steer %.4f deg, want %.4f", step, got.SteerDegrees, *want.SteerDeg)
	}
	if want.Saturated != nil && got.Status.Saturated != *want.Saturated {
		t.Errorf("step %d: saturated %v, want %v", step, got.Status.Saturated, *want.Saturated)
	}
}

// gatheredSum adds every sample of the named metric. A non-empty mode
// restricts the sum to series labelled with it.
func gatheredSum(t *testing.T, reg *prometheus.Registry, name, mode string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := mode == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "mode" && lp.GetValue() == mode {
					matched = true
				}
			}
			if !matched {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
	}
	return sum
}
