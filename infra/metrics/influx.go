package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ewolf/brain/core/messages"
	coremetrics "github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes control and bus events to an InfluxDB instance using
// the official client. Successful deliveries are not written: they happen
// on every envelope and are better served by the Prometheus counters.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDelivery is a no-op.
func (s *InfluxSink) RecordDelivery(coremetrics.DeliveryEvent) error { return nil }

// RecordDrop writes a bus_drop point.
func (s *InfluxSink) RecordDrop(ev coremetrics.DropEvent) error {
	p := write.NewPointWithMeasurement("bus_drop").
		AddTag("owner", string(ev.Key.Owner)).
		AddTag("kind", string(ev.Key.ID)).
		AddTag("subscriber", ev.SubscriberID).
		AddTag("mode", ev.Mode).
		AddTag("reason", ev.Reason).
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordDeadLetter writes a bus_dead_letter point.
func (s *InfluxSink) RecordDeadLetter(key messages.Key) error {
	p := write.NewPointWithMeasurement("bus_dead_letter").
		AddTag("owner", string(key.Owner)).
		AddTag("kind", string(key.ID)).
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordCycle is a no-op: actuations carry the interesting data.
func (s *InfluxSink) RecordCycle(string) error { return nil }

// RecordActuation writes a control_actuation point.
func (s *InfluxSink) RecordActuation(ev coremetrics.ActuationEvent) error {
	st := ev.Status
	ts := st.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	p := write.NewPointWithMeasurement("control_actuation").
		AddTag("component", "control").
		AddTag("saturated", strconv.FormatBool(st.Saturated)).
		AddField("e_y", round3(st.EY)).
		AddField("theta_e", round3(st.ThetaE)).
		AddField("steer_deg", round3(ev.SteerDegrees)).
		AddField("speed_units", ev.SpeedUnits).
		AddField("mean_e_y", round3(st.MeanEY)).
		AddField("stddev_e_y", round3(st.StdDevEY)).
		SetTime(ts)
	return s.write(p)
}

// RecordModeChange writes a mode_change point.
func (s *InfluxSink) RecordModeChange(ev coremetrics.ModeChangeEvent) error {
	p := write.NewPointWithMeasurement("mode_change").
		AddTag("component", "statemachine").
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordBusStats writes a bus_stats point.
func (s *InfluxSink) RecordBusStats(st messages.BusStats) error {
	p := write.NewPointWithMeasurement("bus_stats").
		AddField("subscriptions", st.Subscriptions).
		AddField("delivered", st.Delivered).
		AddField("dropped", st.Dropped).
		AddField("dead_letters", st.DeadLetters).
		SetTime(st.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
