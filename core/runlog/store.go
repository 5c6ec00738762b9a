package runlog

import (
	"context"
	"time"
)

// Kind of run.
type Kind string

const (
	KindTrain   Kind = "train"
	KindPredict Kind = "predict"
)

// Record captures one run and its outcome.
type Record struct {
	Kind      Kind             `json:"kind"`
	RunID     string           `json:"run_id"`
	Timestamp time.Time        `json:"timestamp"`
	Duration  time.Duration    `json:"duration"`
	Error     string           `json:"error,omitempty"`
	Train     *TrainSummary    `json:"train,omitempty"`
	Forecast  *ForecastSummary `json:"forecast,omitempty"`
}

// TrainSummary mirrors a training run.
type TrainSummary struct {
	Samples   int     `json:"samples"`
	Epochs    int     `json:"epochs"`
	FinalLoss float64 `json:"final_loss"`
}

// ForecastSummary mirrors a predict run.
type ForecastSummary struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Stations  []StationOutcome `json:"stations"`
}

// StationOutcome is one station inside a ForecastSummary.
type StationOutcome struct {
	StationID string    `json:"station_id"`
	PM25      float64   `json:"pm25"`
	ValidFrom time.Time `json:"valid_from"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start     time.Time
	End       time.Time
	Kind      Kind
	StationID string
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

func (q Query) matchStation(r Record) bool {
	if q.StationID == "" {
		return true
	}
	if r.Forecast == nil {
		return false
	}
	for _, s := range r.Forecast.Stations {
		if s.StationID == q.StationID {
			return true
		}
	}
	return false
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return q.matchStation(r)
}
