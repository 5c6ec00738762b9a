package config

import (
	"errors"
	"net/url"
	"time"

	"github.com/kilianp07/aqforecast/core/broker"
	"github.com/kilianp07/aqforecast/infra/ngsi"
)

// BrokerConfig describes the NGSI-LD context broker.
type BrokerConfig struct {
	URL              string        `json:"url"`
	Timeout          time.Duration `json:"timeout"`
	FailureThreshold uint32        `json:"failure_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout"`
	ContextURL       string        `json:"context_url"`
	IDPrefix         string        `json:"id_prefix"`
	// MirrorObserved also upserts the latest observation of each station.
	// Defaults to true.
	MirrorObserved *bool `json:"mirror_observed"`
}

func (c *BrokerConfig) SetDefaults() {
	if c.ContextURL == "" {
		c.ContextURL = broker.DefaultContext
	}
	if c.IDPrefix == "" {
		c.IDPrefix = "OWM-"
	}
	if c.MirrorObserved == nil {
		v := true
		c.MirrorObserved = &v
	}
}

func (c BrokerConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("url must be absolute")
	}
	if c.Timeout < 0 || c.OpenTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Client returns the HTTP client settings.
func (c BrokerConfig) Client() ngsi.Config {
	return ngsi.Config{
		URL:              c.URL,
		Timeout:          c.Timeout,
		FailureThreshold: c.FailureThreshold,
		OpenTimeout:      c.OpenTimeout,
	}
}

// Sync returns the entity publishing settings.
func (c BrokerConfig) Sync() broker.SyncConfig {
	mirror := c.MirrorObserved == nil || *c.MirrorObserved
	return broker.SyncConfig{
		EntityOptions:  broker.EntityOptions{IDPrefix: c.IDPrefix, ContextURL: c.ContextURL},
		MirrorObserved: mirror,
	}
}
