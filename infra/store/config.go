package store

import (
	"errors"
	"fmt"
)

// Config selects the database and the entity naming used by ingestion.
type Config struct {
	Driver        string `json:"driver"`
	DSN           string `json:"dsn"`
	StationPrefix string `json:"station_prefix"`
	WeatherPrefix string `json:"weather_prefix"`
	MaxOpenConns  int    `json:"max_open_conns"`
	// Migrate creates the tables when they do not exist.
	Migrate bool `json:"migrate"`
}

func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.StationPrefix == "" {
		c.StationPrefix = "urn:ngsi-ld:AirQualityStation:OWM-"
	}
	if c.WeatherPrefix == "" {
		c.WeatherPrefix = "urn:ngsi-ld:WeatherObservation:OWM-"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
}

func (c Config) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q must be postgres or sqlite", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}
