package metrics_test

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ewolf/brain/core/factory"
	metrics "github.com/ewolf/brain/core/metrics"
	_ "github.com/ewolf/brain/infra/metrics"
)

func TestSinkTypesIncludeBuiltins(t *testing.T) {
	got := strings.Join(metrics.SinkTypes(), ",")
	for _, want := range []string{"influx", "nop", "prometheus", "sqlite"} {
		if !strings.Contains(got, want) {
			t.Errorf("sink %q not registered (have %s)", want, got)
		}
	}
}

func TestNewMetricsSinkShapes(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create default: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	if err != nil {
		t.Fatalf("create multi: %v", err)
	}
	m, ok := s.(*metrics.MultiSink)
	if !ok || len(m.Sinks) != 2 {
		t.Fatalf("expected MultiSink with 2 sinks, got %T", s)
	}
}

func TestNewMetricsSinkNamesFailingEntry(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "missing"}})
	if err == nil || !strings.Contains(err.Error(), "metrics sink 1 (missing)") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsConfigDecodeYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.db")
	data := "sinks:\n  - type: nop\n  - type: sqlite\n    conf:\n      path: " + path + "\n"
	var cfg metrics.Config
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	s, err := metrics.NewMetricsSink(cfg.Sinks)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m, ok := s.(*metrics.MultiSink)
	if !ok {
		t.Fatalf("expected MultiSink, got %T", s)
	}
	if c, ok := m.Sinks[1].(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func TestMetricsConfigDecodeJSON(t *testing.T) {
	data := `{"prometheus_addr":":9100","sinks":[{"type":"missing"}]}`
	var cfg metrics.Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if cfg.PrometheusAddr != ":9100" {
		t.Fatalf("prometheus_addr = %q", cfg.PrometheusAddr)
	}
	if _, err := metrics.NewMetricsSink(cfg.Sinks); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
