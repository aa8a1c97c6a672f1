package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/core/statemachine"
)

// PromSink records bus and control activity in Prometheus metrics.
type PromSink struct {
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
	cycles      *prometheus.CounterVec
	steer       prometheus.Gauge
	speed       prometheus.Gauge
	crossTrack  prometheus.Gauge
	saturated   *prometheus.CounterVec
	mode        *prometheus.GaugeVec
	subs        prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.delivered, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_envelopes_delivered_total",
		Help: "Envelopes routed to at least one subscriber, counted once per subscriber",
	}, []string{"owner", "kind", "class"})); err != nil {
		return nil, err
	}
	if s.dropped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_envelopes_dropped_total",
		Help: "Envelopes lost because a destination buffer was full",
	}, []string{"owner", "kind", "mode", "reason"})); err != nil {
		return nil, err
	}
	if s.deadLetters, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_dead_letters_total",
		Help: "Envelopes published with no matching subscription",
	}, []string{"owner", "kind"})); err != nil {
		return nil, err
	}
	if s.subs, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bus_subscriptions",
		Help: "Live subscriptions in the gateway routing table",
	})); err != nil {
		return nil, err
	}
	if s.cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "control_cycles_total",
		Help: "Control loop cycles by outcome",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.steer, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "control_steering_degrees",
		Help: "Last steering command in degrees",
	})); err != nil {
		return nil, err
	}
	if s.speed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "control_speed_units",
		Help: "Last speed command in motor units",
	})); err != nil {
		return nil, err
	}
	if s.crossTrack, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "control_cross_track_error",
		Help: "Last lateral error received from perception",
	})); err != nil {
		return nil, err
	}
	if s.saturated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "control_actuations_total",
		Help: "Actuations by steering saturation",
	}, []string{"saturated"})); err != nil {
		return nil, err
	}
	if s.mode, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "driving_mode",
		Help: "1 for the current driving mode, 0 otherwise",
	}, []string{"mode"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// RecordDelivery counts one delivery per subscriber.
func (s *PromSink) RecordDelivery(ev coremetrics.DeliveryEvent) error {
	s.delivered.WithLabelValues(string(ev.Key.Owner), string(ev.Key.ID), ev.Class.String()).Add(float64(ev.Subscribers))
	return nil
}

// RecordDrop counts a lost envelope.
func (s *PromSink) RecordDrop(ev coremetrics.DropEvent) error {
	s.dropped.WithLabelValues(string(ev.Key.Owner), string(ev.Key.ID), ev.Mode, ev.Reason).Inc()
	return nil
}

// RecordDeadLetter counts an envelope nobody subscribed to.
func (s *PromSink) RecordDeadLetter(key messages.Key) error {
	s.deadLetters.WithLabelValues(string(key.Owner), string(key.ID)).Inc()
	return nil
}

// RecordCycle counts a control cycle outcome.
func (s *PromSink) RecordCycle(outcome string) error {
	s.cycles.WithLabelValues(outcome).Inc()
	return nil
}

// RecordActuation updates the actuator gauges.
func (s *PromSink) RecordActuation(ev coremetrics.ActuationEvent) error {
	s.steer.Set(ev.SteerDegrees)
	s.speed.Set(ev.SpeedUnits)
	s.crossTrack.Set(ev.Status.EY)
	s.saturated.WithLabelValues(strconv.FormatBool(ev.Status.Saturated)).Inc()
	return nil
}

// RecordModeChange flags the new mode.
func (s *PromSink) RecordModeChange(ev coremetrics.ModeChangeEvent) error {
	for _, m := range statemachine.Modes {
		v := 0.0
		if m.String() == ev.To {
			v = 1
		}
		s.mode.WithLabelValues(m.String()).Set(v)
	}
	return nil
}

// RecordBusStats exposes the gateway snapshot.
func (s *PromSink) RecordBusStats(st messages.BusStats) error {
	s.subs.Set(float64(st.Subscriptions))
	return nil
}
