package model

import (
	"errors"
	"fmt"
	"time"
)

// Station is a fixed monitoring location. The position of a station inside a
// StationRegistry is its node index everywhere in the pipeline.
type Station struct {
	ID  string  `json:"id" yaml:"id"`
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks that the coordinates are within WGS84 bounds.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station id is required")
	}
	if s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("station %s: latitude %v out of range", s.ID, s.Lat)
	}
	if s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("station %s: longitude %v out of range", s.ID, s.Lon)
	}
	return nil
}

// Observation is one PM2.5 measurement recorded by the ingestion system.
type Observation struct {
	StationID string    `json:"station_id" db:"station_id"`
	Time      time.Time `json:"time" db:"time"`
	PM25      float64   `json:"pm25" db:"pm25"`
}

// Weather is the latest weather reading near a station.
type Weather struct {
	Temperature float64 `json:"temperature" db:"temperature"`
	Humidity    float64 `json:"relative_humidity" db:"relative_humidity"`
	WindSpeed   float64 `json:"wind_speed" db:"wind_speed"`
}

// Forecast is a predicted PM2.5 value for one station and one time slot.
type Forecast struct {
	StationID  string    `json:"station_id"`
	PM25       float64   `json:"pm25"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidTo    time.Time `json:"valid_to"`
	ObservedAt time.Time `json:"observed_at"`
}
