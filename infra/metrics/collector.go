package metrics

import (
	"context"
	"time"

	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/infra/logger"
	"github.com/ewolf/brain/internal/eventbus"
)

// StartStatsCollector subscribes to the gateway's BusStats telemetry and
// forwards every snapshot to sink. It returns when ctx is canceled.
func StartStatsCollector(ctx context.Context, gw *eventbus.Gateway, sink coremetrics.BusStatsRecorder, poll time.Duration) error {
	if gw == nil || sink == nil {
		return nil
	}
	if poll <= 0 {
		poll = time.Second
	}
	log := logger.New("stats-collector")
	sub := eventbus.NewSubscriber(gw, "stats-collector")
	if err := sub.Subscribe(messages.BusStatsKind, eventbus.Latest); err != nil {
		return err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			log.Warnf("close endpoint: %v", err)
		}
	}()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st, ok, err := eventbus.GetAs[messages.BusStats](sub, messages.BusStatsKind)
			if err != nil {
				log.Warnf("bus stats: %v", err)
				continue
			}
			if ok {
				if err := sink.RecordBusStats(st); err != nil {
					log.Debugf("record bus stats: %v", err)
				}
			}
		}
	}
}
