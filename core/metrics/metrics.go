package metrics

import "time"

// ForecastResult is the outcome of one station in a predict batch.
type ForecastResult struct {
	RunID     string
	StationID string
	PM25      float64
	Status    string
	ValidFrom time.Time
	Time      time.Time
}

// MetricsSink records forecast results for observability purposes.
type MetricsSink interface {
	RecordForecastResults(results []ForecastResult) error
}

// TrainingRunEvent summarises a completed training run.
type TrainingRunEvent struct {
	RunID     string
	Samples   int
	Epochs    int
	FinalLoss float64
	Duration  time.Duration
	Time      time.Time
}

// TrainingRecorder records training runs.
type TrainingRecorder interface {
	RecordTrainingRun(ev TrainingRunEvent) error
}

// BatchEvent summarises one predict run.
type BatchEvent struct {
	RunID       string
	Stations    int
	Failed      int
	FailureRate float64
	Aborted     bool
	Time        time.Time
}

// BatchRecorder records predict run summaries.
type BatchRecorder interface {
	RecordBatch(ev BatchEvent) error
}

// BrokerSyncEvent captures one upsert against the context broker.
type BrokerSyncEvent struct {
	StationID  string
	EntityType string
	Outcome    string
	Latency    time.Duration
	Error      string
	Time       time.Time
}

// BrokerSyncRecorder records broker upserts.
type BrokerSyncRecorder interface {
	RecordBrokerSync(ev BrokerSyncEvent) error
}

// JobEvent records one scheduled job execution.
type JobEvent struct {
	Job      string
	Success  bool
	Duration time.Duration
	Time     time.Time
}

// JobRecorder records scheduler job executions.
type JobRecorder interface {
	RecordJob(ev JobEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordForecastResults([]ForecastResult) error { return nil }
func (NopSink) RecordTrainingRun(TrainingRunEvent) error     { return nil }
func (NopSink) RecordBatch(BatchEvent) error                 { return nil }
func (NopSink) RecordBrokerSync(BrokerSyncEvent) error       { return nil }
func (NopSink) RecordJob(JobEvent) error                     { return nil }
