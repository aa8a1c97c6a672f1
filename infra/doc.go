// Package infra holds the adapters behind the core interfaces: zerolog
// logging, Prometheus, InfluxDB and SQLite sinks, Sentry reporting and the
// MQTT bridge.
package infra
