// Package app wires the bus, the state machine, the control loop and the
// optional collaborators into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ewolf/brain/config"
	"github.com/ewolf/brain/core/control"
	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	coremon "github.com/ewolf/brain/core/monitoring"
	"github.com/ewolf/brain/core/statemachine"
	"github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/infra/metrics"
	"github.com/ewolf/brain/infra/monitoring"
	"github.com/ewolf/brain/infra/mqtt"
	"github.com/ewolf/brain/internal/eventbus"
	"github.com/ewolf/brain/simulator"
)

// Service owns every long-running component of the vehicle brain.
type Service struct {
	Gateway *eventbus.Gateway
	Machine *statemachine.Machine
	Loop    *control.Loop
	// Bridge is nil unless mqtt.enabled.
	Bridge *mqtt.Bridge
	// Vehicle is nil unless simulator.enabled.
	Vehicle *simulator.Vehicle

	cfg  *config.Config
	sink coremetrics.MetricsSink
	log  logger.Logger
}

// New creates a Service from the configuration. Components subscribe here,
// before the gateway runs, so no envelope published at startup is lost.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Logging.Options()); err != nil {
		return nil, err
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	reg, err := messages.Catalogue()
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	gw := eventbus.NewGateway(reg,
		eventbus.WithRecorder(sink),
		eventbus.WithLineCapacity(cfg.Bus.LineCapacity),
		eventbus.WithEndpointCapacity(cfg.Bus.EndpointCapacity),
		eventbus.WithStatsInterval(cfg.Bus.StatsInterval()),
	)

	smOpts := []statemachine.Option{statemachine.WithIdleWait(cfg.StateMachine.IdleWait())}
	if mr, ok := sink.(coremetrics.ModeChangeRecorder); ok {
		smOpts = append(smOpts, statemachine.WithRecorder(mr))
	}
	machine, err := statemachine.New(gw, smOpts...)
	if err != nil {
		return nil, err
	}
	loop, err := control.NewLoop(gw, cfg.Control, control.WithRecorder(sink))
	if err != nil {
		return nil, err
	}

	svc := &Service{Gateway: gw, Machine: machine, Loop: loop, cfg: cfg, sink: sink, log: logg}
	if cfg.MQTT.Enabled {
		if svc.Bridge, err = mqtt.NewBridge(gw, cfg.MQTT); err != nil {
			return nil, fmt.Errorf("mqtt bridge: %w", err)
		}
	}
	if cfg.Simulator.Enabled {
		if svc.Vehicle, err = simulator.NewVehicle(gw, cfg.Simulator); err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
	}
	return svc, nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Gateway.Run(gctx) })
	g.Go(func() error { return s.Machine.Run(gctx) })
	g.Go(func() error { return s.Loop.Run(gctx) })
	if s.Bridge != nil {
		g.Go(func() error { return s.Bridge.Run(gctx) })
	}
	if s.Vehicle != nil {
		g.Go(func() error { return s.Vehicle.Run(gctx) })
	}
	if rec, ok := s.sink.(coremetrics.BusStatsRecorder); ok && s.cfg.Bus.StatsIntervalMS > 0 {
		g.Go(func() error {
			return metrics.StartStatsCollector(gctx, s.Gateway, rec, s.cfg.Bus.StatsInterval())
		})
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		g.Go(func() error {
			if err := metrics.StartPromServer(gctx, addr); err != nil {
				return fmt.Errorf("prom server: %w", err)
			}
			return nil
		})
	}
	s.log.Infof("brain running (mqtt=%t simulator=%t)", s.Bridge != nil, s.Vehicle != nil)
	err := g.Wait()
	if err != nil {
		coremon.CaptureException(err, map[string]string{"component": "service"})
	}
	return err
}

// Close releases the metrics sinks and flushes the error monitor.
func (s *Service) Close() error {
	sinks := []coremetrics.MetricsSink{s.sink}
	if m, ok := s.sink.(*coremetrics.MultiSink); ok {
		sinks = m.Sinks
	}
	var errs []error
	for _, sk := range sinks {
		switch c := sk.(type) {
		case interface{ Close() error }:
			errs = append(errs, c.Close())
		case interface{ Close() }:
			c.Close()
		}
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
