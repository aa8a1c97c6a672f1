// Package metrics defines the recorder interfaces used by the bus and the
// control loop. Sinks such as PromSink and InfluxSink live in infra/metrics
// and can be combined with NewMultiSink. NewMetricsSink builds a MultiSink
// automatically when several sinks are configured.
package metrics
