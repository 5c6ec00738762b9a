package metrics

import "github.com/kilianp07/aqforecast/core/factory"

// Config defines settings for metrics sinks and the HTTP listener that
// serves /metrics and the forecast API.
type Config struct {
	Sinks  []factory.ModuleConfig `json:"sinks"`
	Listen string                 `json:"listen"`
}

// SetDefaults fills the listener address.
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":2112"
	}
}
