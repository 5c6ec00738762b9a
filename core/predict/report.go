package predict

import (
	"time"

	"github.com/kilianp07/aqforecast/core/events"
)

// Status of one station in a batch.
type Status string

const (
	StatusOK            Status = "ok"
	StatusSkipped       Status = "skipped"
	StatusPublishFailed Status = "publish_failed"
)

// StationResult is the outcome of one station.
type StationResult struct {
	StationID string    `json:"station_id"`
	Value     float64   `json:"value"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
}

// BatchReport lists the outcome of every station in registry order.
type BatchReport struct {
	RunID    string          `json:"run_id"`
	Time     time.Time       `json:"time"`
	Duration time.Duration   `json:"duration"`
	Results  []StationResult `json:"results"`
}

// Succeeded counts stations published successfully.
func (r BatchReport) Succeeded() int {
	n := 0
	for _, s := range r.Results {
		if s.Status == StatusOK {
			n++
		}
	}
	return n
}

// Failed counts stations that were skipped or failed to publish.
func (r BatchReport) Failed() int { return len(r.Results) - r.Succeeded() }

// FailureRate returns Failed over the number of stations.
func (r BatchReport) FailureRate() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Failed()) / float64(len(r.Results))
}

// Event converts the report into its bus event.
func (r BatchReport) Event() events.ForecastBatch {
	res := make([]events.StationForecast, len(r.Results))
	for i, s := range r.Results {
		res[i] = events.StationForecast{
			StationID: s.StationID,
			PM25:      s.Value,
			ValidFrom: s.ValidFrom,
			ValidTo:   s.ValidTo,
			Status:    string(s.Status),
			Reason:    s.Reason,
		}
	}
	return events.ForecastBatch{RunID: r.RunID, Results: res, FailureRate: r.FailureRate(), Duration: r.Duration, Time: r.Time}
}
