// Package osm derives static station features from OpenStreetMap through
// the Overpass API.
package osm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/serjvanilla/go-overpass"

	"github.com/kilianp07/aqforecast/core/model"
	"github.com/kilianp07/aqforecast/infra/logger"
)

// Config controls the road feature lookup.
type Config struct {
	Endpoint string        `json:"endpoint"`
	RadiusM  int           `json:"radius_m"`
	Timeout  time.Duration `json:"timeout"`
	// Highways is the regular expression matched against the highway tag.
	Highways string `json:"highways"`
}

func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://overpass-api.de/api/interpreter"
	}
	if c.RadiusM == 0 {
		c.RadiusM = 1000
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Highways == "" {
		c.Highways = "^(motorway|trunk|primary|secondary)$"
	}
}

func (c Config) Validate() error {
	if c.RadiusM <= 0 {
		return errors.New("roads.radius_m must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("roads.timeout must not be negative")
	}
	return nil
}

// RoadStore persists the per-station road counts.
type RoadStore interface {
	UpsertRoadCount(ctx context.Context, stationID string, n int) error
}

// RoadCounter counts major roads around stations.
type RoadCounter struct {
	cfg    Config
	client overpass.Client
	log    logger.Logger
}

// NewRoadCounter builds a counter against cfg.Endpoint.
func NewRoadCounter(cfg Config, log logger.Logger) *RoadCounter {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	// one query at a time keeps within the public instance rate limits
	client := overpass.NewWithSettings(cfg.Endpoint, 1, &http.Client{Timeout: cfg.Timeout})
	return &RoadCounter{cfg: cfg, client: client, log: log}
}

func (c *RoadCounter) query(st model.Station) string {
	return fmt.Sprintf(`[out:json][timeout:%d];way["highway"~"%s"](around:%d,%f,%f);out ids;`,
		int(c.cfg.Timeout/time.Second), c.cfg.Highways, c.cfg.RadiusM, st.Lat, st.Lon)
}

// Count returns the number of matching ways within the radius of st.
func (c *RoadCounter) Count(ctx context.Context, st model.Station) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := c.client.Query(c.query(st))
	if err != nil {
		return 0, fmt.Errorf("overpass query for %s: %w", st.ID, err)
	}
	return len(res.Ways), nil
}

// Refresh counts roads for every station and stores the results. Stations
// that fail are logged and skipped; the joined errors are returned.
func (c *RoadCounter) Refresh(ctx context.Context, stations []model.Station, st RoadStore) (map[string]int, error) {
	counts := make(map[string]int, len(stations))
	var errs []error
	for _, s := range stations {
		n, err := c.Count(ctx, s)
		if err == nil {
			err = st.UpsertRoadCount(ctx, s.ID, n)
		}
		if err != nil {
			if ctx.Err() != nil {
				return counts, ctx.Err()
			}
			c.log.Warnf("station %s: road features: %v", s.ID, err)
			errs = append(errs, err)
			continue
		}
		c.log.Debugw("road features", map[string]any{"station": s.ID, "major_roads": n})
		counts[s.ID] = n
	}
	return counts, errors.Join(errs...)
}
