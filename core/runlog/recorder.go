package runlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/aqforecast/core/events"
	"github.com/kilianp07/aqforecast/infra/logger"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// Config selects the run log backend.
type Config struct {
	// Backend is one of "jsonl", "sqlite" or "none".
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "data/runs.db"
		default:
			c.Path = "data/runs.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
}

// ErrDisabled is returned by Open when the backend is "none".
var ErrDisabled = errors.New("run log disabled")

// Open creates the configured store.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case "jsonl":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown run log backend %q", cfg.Backend)
	}
}

// FromEvent converts a bus event into a Record.
func FromEvent(ev eventbus.Event) (Record, bool) {
	switch e := ev.(type) {
	case events.TrainingCompleted:
		r := Record{Kind: KindTrain, RunID: e.RunID, Timestamp: e.Time, Duration: e.Duration}
		if e.Err != nil {
			r.Error = e.Err.Error()
		} else {
			r.Train = &TrainSummary{Samples: e.Samples, Epochs: e.Epochs, FinalLoss: e.FinalLoss}
		}
		return r, true
	case events.ForecastBatch:
		sum := &ForecastSummary{Stations: make([]StationOutcome, len(e.Results))}
		for i, s := range e.Results {
			sum.Stations[i] = StationOutcome{
				StationID: s.StationID,
				PM25:      s.PM25,
				ValidFrom: s.ValidFrom,
				Status:    s.Status,
				Reason:    s.Reason,
			}
			if s.Status == "ok" {
				sum.Succeeded++
			} else {
				sum.Failed++
			}
		}
		r := Record{Kind: KindPredict, RunID: e.RunID, Timestamp: e.Time, Duration: e.Duration, Forecast: sum}
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
		return r, true
	}
	return Record{}, false
}

// Listen appends a Record to st for every run event published on bus.
func Listen(ctx context.Context, bus eventbus.EventBus, st Store, log logger.Logger) <-chan struct{} {
	if log == nil {
		log = logger.NopLogger{}
	}
	return eventbus.Consume(ctx, bus, func(ev eventbus.Event) {
		rec, ok := FromEvent(ev)
		if !ok {
			return
		}
		if err := st.Append(ctx, rec); err != nil {
			log.Errorf("run log append %s %s: %v", rec.Kind, rec.RunID, err)
		}
	})
}
