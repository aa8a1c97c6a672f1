package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ewolf/brain/core/control"
	"github.com/ewolf/brain/core/metrics"
	"github.com/ewolf/brain/infra/mqtt"
	"github.com/ewolf/brain/simulator"
)

// EnvPrefix marks environment overrides. BRAIN_CONTROL__K=0.6 sets
// control.k.
const EnvPrefix = "BRAIN_"

type Config struct {
	Bus          BusConfig          `json:"bus"`
	Control      control.Config     `json:"control"`
	StateMachine StateMachineConfig `json:"statemachine"`
	MQTT         mqtt.Config        `json:"mqtt"`
	Metrics      metrics.Config     `json:"metrics"`
	Logging      LoggingConfig      `json:"logging"`
	Sentry       SentryConfig       `json:"sentry"`
	Simulator    simulator.Config   `json:"simulator"`
}

// Load reads the file at path, applies environment overrides, fills
// defaults and validates every section. An empty path loads defaults and
// the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Bus.SetDefaults()
	c.Control.SetDefaults()
	c.StateMachine.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	c.Simulator.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.Control.Validate(); err != nil {
		return err
	}
	if err := c.StateMachine.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return c.Simulator.Validate()
}
