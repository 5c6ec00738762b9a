package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/aqforecast/core/metrics"
	"github.com/kilianp07/aqforecast/core/model"
	"github.com/kilianp07/aqforecast/core/predict"
	"github.com/kilianp07/aqforecast/core/runlog"
	"github.com/kilianp07/aqforecast/core/scheduler"
	"github.com/kilianp07/aqforecast/core/training"
	"github.com/kilianp07/aqforecast/infra/monitoring"
	"github.com/kilianp07/aqforecast/infra/mqtt"
	"github.com/kilianp07/aqforecast/infra/osm"
	"github.com/kilianp07/aqforecast/infra/store"
)

type Config struct {
	Stations     []model.Station   `json:"stations"`
	StationsFile string            `json:"stations_file"`
	Database     store.Config      `json:"database"`
	Graph        GraphConfig       `json:"graph"`
	Model        training.Config   `json:"model"`
	Artifacts    ArtifactsConfig   `json:"artifacts"`
	Broker       BrokerConfig      `json:"broker"`
	Predict      predict.Config    `json:"predict"`
	Scheduler    scheduler.Config  `json:"scheduler"`
	Metrics      metrics.Config    `json:"metrics"`
	RunLog       runlog.Config     `json:"runlog"`
	Sentry       monitoring.Config `json:"sentry"`
	MQTT         mqtt.Config       `json:"mqtt"`
	Roads        osm.Config        `json:"roads"`
	API          APIConfig         `json:"api"`

	dir string
}

// GraphConfig holds the adjacency threshold.
type GraphConfig struct {
	ThresholdKm float64 `json:"threshold_km"`
}

// ArtifactsConfig locates the trained bundle.
type ArtifactsConfig struct {
	Dir string `json:"dir"`
}

// APIConfig protects the run log endpoint. An empty token disables auth.
type APIConfig struct {
	Token string `json:"token"`
}

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
	// Optional environment overrides: K_BROKER__URL sets broker.url. The
	// provider splits nested keys on "__".
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "k_")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	if c.Graph.ThresholdKm != 0 && c.Model.ThresholdKm == 0 {
		c.Model.ThresholdKm = c.Graph.ThresholdKm
	}
	c.Database.SetDefaults()
	c.Model.SetDefaults()
	c.Graph.ThresholdKm = c.Model.ThresholdKm
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
	c.Broker.SetDefaults()
	c.Predict.SetDefaults()
	if c.Predict.Window == 0 {
		c.Predict.Window = c.Model.Window
	}
	c.Scheduler.SetDefaults()
	c.Metrics.SetDefaults()
	c.RunLog.SetDefaults()
	c.MQTT.SetDefaults()
	c.Roads.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if len(c.Stations) == 0 && c.StationsFile == "" {
		return errors.New("either stations or stations_file is required")
	}
	if len(c.Stations) > 0 && c.StationsFile != "" {
		return errors.New("stations and stations_file are mutually exclusive")
	}
	if c.Predict.Window != 0 && c.Predict.Window != c.Model.Window {
		return fmt.Errorf("predict.window %d differs from model.window %d", c.Predict.Window, c.Model.Window)
	}
	for name, v := range map[string]interface{ Validate() error }{
		"database":  c.Database,
		"model":     c.Model,
		"broker":    c.Broker,
		"predict":   c.Predict,
		"scheduler": c.Scheduler,
		"sentry":    c.Sentry,
		"mqtt":      c.MQTT,
		"roads":     c.Roads,
	} {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Registry builds the ordered station registry from the inline list or the
// stations file. A relative stations_file is resolved against the directory
// of the config file.
func (c Config) Registry() (*model.StationRegistry, error) {
	if c.StationsFile == "" {
		return model.NewStationRegistry(c.Stations)
	}
	path := c.StationsFile
	if !filepath.IsAbs(path) && c.dir != "" {
		path = filepath.Join(c.dir, path)
	}
	return model.LoadRegistry(path)
}
