package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `bus:
  line_capacity: 64
  stats_interval_ms: 500
control:
  k: 0.7
  max_steer_deg: 20
statemachine:
  idle_wait_ms: 5
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "car-1"
  username: "user"
  password: "pass"
  perception_topic: "lane/error"
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
logging:
  level: debug
sentry:
  vehicle_id: "bfmc-7"
simulator:
  enabled: true
  initial_offset: 0.25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"bus.line_capacity", cfg.Bus.LineCapacity, 64},
		{"bus.endpoint_capacity default", cfg.Bus.EndpointCapacity, 256},
		{"bus.stats_interval", cfg.Bus.StatsInterval(), 500 * time.Millisecond},
		{"control.k", cfg.Control.K, 0.7},
		{"control.ks default", cfg.Control.Softening(), 0.1},
		{"control.max_steer_deg", cfg.Control.MaxSteerDeg, 20.0},
		{"statemachine.idle_wait", cfg.StateMachine.IdleWait(), 5 * time.Millisecond},
		{"mqtt.enabled", cfg.MQTT.Enabled, true},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.client_id", cfg.MQTT.ClientID, "car-1"},
		{"mqtt.perception_topic", cfg.MQTT.PerceptionTopic, "lane/error"},
		{"mqtt.mode_topic default", cfg.MQTT.ModeTopic, "brain/mode"},
		{"metrics.addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"sentry.vehicle_id", cfg.Sentry.VehicleID, "bfmc-7"},
		{"simulator.enabled", cfg.Simulator.Enabled, true},
		{"simulator.initial_offset", cfg.Simulator.InitialOffset, 0.25},
		{"simulator.period_ms default", cfg.Simulator.PeriodMS, 20},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Control.K != 0.55 || cfg.Control.SpeedScale != 300 || cfg.Control.MaxSteerDeg != 25 {
		t.Fatalf("unexpected control defaults: %+v", cfg.Control)
	}
	if cfg.MQTT.Enabled {
		t.Fatal("mqtt must be disabled by default")
	}
	if cfg.Bus.StatsIntervalMS != 0 {
		t.Fatalf("bus stats must be off by default, got %d", cfg.Bus.StatsIntervalMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRAIN_CONTROL__K", "0.6")
	t.Setenv("BRAIN_MQTT__ENABLED", "true")
	t.Setenv("BRAIN_MQTT__BROKER", "tcp://broker:1883")
	t.Setenv("BRAIN_LOGGING__LEVEL", "warn")
	t.Setenv("BRAIN_STATEMACHINE__IDLE_WAIT_MS", "25")
	t.Setenv("BRAIN_CONTROL__KS", "0")

	path := writeFile(t, "config.json", `{"control": {"k": 0.9}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Control.K != 0.6 {
		t.Errorf("env must override file: k = %v", cfg.Control.K)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt override not applied: %+v", cfg.MQTT)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
	if cfg.StateMachine.IdleWaitMS != 25 {
		t.Errorf("underscored key not applied: idle_wait_ms = %d", cfg.StateMachine.IdleWaitMS)
	}
	if cfg.Control.Ks == nil || *cfg.Control.Ks != 0 {
		t.Errorf("explicit zero ks lost: %v", cfg.Control.Softening())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"format":       "",
		"control":      "control:\n  max_steer_deg: 120\n",
		"bus":          "bus:\n  line_capacity: -1\n",
		"mqtt broker":  "mqtt:\n  enabled: true\n",
		"log level":    "logging:\n  level: loud\n",
		"simulator":    "simulator:\n  wheelbase: -0.2\n",
		"statemachine": "statemachine:\n  idle_wait_ms: -3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			file := "config.yaml"
			if name == "format" {
				file = "config.toml"
			}
			if _, err := Load(writeFile(t, file, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoggingOptions(t *testing.T) {
	c := LoggingConfig{File: "logs/brain.log"}
	c.SetDefaults()
	opts := c.Options()
	if opts.Level != "info" || opts.File != "logs/brain.log" || opts.MaxSizeMB != 50 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}
