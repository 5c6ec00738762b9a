package events

import "time"

// TrainingCompleted is published after every training attempt. Err is set
// when the run was skipped or failed.
type TrainingCompleted struct {
	RunID     string
	Samples   int
	Epochs    int
	FinalLoss float64
	Duration  time.Duration
	Time      time.Time
	Err       error
}

// StationForecast is one station's outcome inside a ForecastBatch.
type StationForecast struct {
	StationID string
	PM25      float64
	ValidFrom time.Time
	ValidTo   time.Time
	Status    string
	Reason    string
}

// ForecastBatch is published after every predict run. Err is set when the
// run aborted; Results is then empty unless stations had already been
// examined.
type ForecastBatch struct {
	RunID       string
	Results     []StationForecast
	FailureRate float64
	Duration    time.Duration
	Time        time.Time
	Err         error
}
