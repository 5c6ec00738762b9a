package metrics

import (
	"errors"
	"strconv"

	coremetrics "github.com/kilianp07/aqforecast/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records forecasting events in Prometheus metrics.
type PromSink struct {
	forecast      *prometheus.GaugeVec
	results       *prometheus.CounterVec
	failureRate   prometheus.Gauge
	aborted       prometheus.Counter
	trainLoss     prometheus.Gauge
	trainSamples  prometheus.Gauge
	trainDuration prometheus.Histogram
	syncs         *prometheus.CounterVec
	syncLatency   *prometheus.HistogramVec
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
}

// NewPromSink registers forecasting metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		forecast: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqforecast_forecast_pm25",
			Help: "Latest published PM2.5 forecast per station",
		}, []string{"station_id"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqforecast_forecast_results_total",
			Help: "Per-station predict outcomes",
		}, []string{"station_id", "status"}),
		failureRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqforecast_forecast_failure_rate",
			Help: "Share of stations skipped or not published in the last predict run",
		}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aqforecast_forecast_aborted_total",
			Help: "Predict runs that aborted before publishing",
		}),
		trainLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqforecast_training_final_loss",
			Help: "Mean squared error of the last training epoch",
		}),
		trainSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqforecast_training_samples",
			Help: "Number of snapshots used by the last training run",
		}),
		trainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aqforecast_training_duration_seconds",
			Help:    "Wall time of training runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqforecast_broker_sync_total",
			Help: "Context broker upserts by entity type and outcome",
		}, []string{"entity_type", "outcome"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqforecast_broker_sync_latency_seconds",
			Help:    "Latency of context broker upserts",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity_type"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqforecast_job_runs_total",
			Help: "Scheduled job executions",
		}, []string{"job", "success"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqforecast_job_duration_seconds",
			Help:    "Duration of scheduled jobs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"job"}),
	}

	var err error
	if s.forecast, err = register(reg, s.forecast); err != nil {
		return nil, err
	}
	if s.results, err = register(reg, s.results); err != nil {
		return nil, err
	}
	if s.failureRate, err = register(reg, s.failureRate); err != nil {
		return nil, err
	}
	if s.aborted, err = register(reg, s.aborted); err != nil {
		return nil, err
	}
	if s.trainLoss, err = register(reg, s.trainLoss); err != nil {
		return nil, err
	}
	if s.trainSamples, err = register(reg, s.trainSamples); err != nil {
		return nil, err
	}
	if s.trainDuration, err = register(reg, s.trainDuration); err != nil {
		return nil, err
	}
	if s.syncs, err = register(reg, s.syncs); err != nil {
		return nil, err
	}
	if s.syncLatency, err = register(reg, s.syncLatency); err != nil {
		return nil, err
	}
	if s.jobs, err = register(reg, s.jobs); err != nil {
		return nil, err
	}
	if s.jobDuration, err = register(reg, s.jobDuration); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordForecastResults counts outcomes and updates the forecast gauge for
// stations that were published.
func (s *PromSink) RecordForecastResults(res []coremetrics.ForecastResult) error {
	for _, r := range res {
		s.results.WithLabelValues(r.StationID, r.Status).Inc()
		if r.Status == "ok" {
			s.forecast.WithLabelValues(r.StationID).Set(r.PM25)
		}
	}
	return nil
}

// RecordBatch sets the failure rate gauge and counts aborted runs.
func (s *PromSink) RecordBatch(ev coremetrics.BatchEvent) error {
	s.failureRate.Set(ev.FailureRate)
	if ev.Aborted {
		s.aborted.Inc()
	}
	return nil
}

// RecordTrainingRun updates the training gauges and histogram.
func (s *PromSink) RecordTrainingRun(ev coremetrics.TrainingRunEvent) error {
	s.trainLoss.Set(ev.FinalLoss)
	s.trainSamples.Set(float64(ev.Samples))
	s.trainDuration.Observe(ev.Duration.Seconds())
	return nil
}

// RecordBrokerSync counts the upsert and observes its latency.
func (s *PromSink) RecordBrokerSync(ev coremetrics.BrokerSyncEvent) error {
	s.syncs.WithLabelValues(ev.EntityType, ev.Outcome).Inc()
	s.syncLatency.WithLabelValues(ev.EntityType).Observe(ev.Latency.Seconds())
	return nil
}

// RecordJob counts the job execution and observes its duration.
func (s *PromSink) RecordJob(ev coremetrics.JobEvent) error {
	s.jobs.WithLabelValues(ev.Job, strconv.FormatBool(ev.Success)).Inc()
	s.jobDuration.WithLabelValues(ev.Job).Observe(ev.Duration.Seconds())
	return nil
}
