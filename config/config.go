// Package config loads the engine configuration from a YAML or JSON file
// with optional environment overrides.
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

	"github.com/trafficsense/forecast/core/forecastcache"
	"github.com/trafficsense/forecast/core/horizon"
	coremetrics "github.com/trafficsense/forecast/core/metrics"
	"github.com/trafficsense/forecast/core/training"
	"github.com/trafficsense/forecast/infra/mqtt"
	"github.com/trafficsense/forecast/infra/store"
)

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// RefreshConfig controls the background forecast refresher.
type RefreshConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// SetDefaults applies sane defaults.
func (c *RefreshConfig) SetDefaults() {
	if c.IntervalMinutes == 0 {
		c.IntervalMinutes = 60
	}
}

// ModelConfig locates the persisted model bundle.
type ModelConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *ModelConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "models/ensemble.json"
	}
}

type Config struct {
	HTTP     HTTPConfig           `json:"http"`
	Store    store.Config         `json:"store"`
	Model    ModelConfig          `json:"model"`
	Horizon  horizon.Config       `json:"horizon"`
	Cache    forecastcache.Config `json:"cache"`
	Training training.Config      `json:"training"`
	Metrics  coremetrics.Config   `json:"metrics"`
	MQTT     mqtt.Config          `json:"mqtt"`
	Refresh  RefreshConfig        `json:"refresh"`
}

// Load reads the configuration file, applies TF_* environment overrides
// (double underscore as the section separator), fills in defaults and
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
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
	// Optional environment overrides
	if err := k.Load(env.Provider("TF_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "tf_")
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

// SetDefaults fills every section with sane defaults.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Store.SetDefaults()
	c.Model.SetDefaults()
	c.Horizon.SetDefaults()
	c.Cache.SetDefaults()
	c.Training.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
	c.Refresh.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Horizon.Validate(); err != nil {
		return fmt.Errorf("horizon: %w", err)
	}
	if err := c.Training.Validate(); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
