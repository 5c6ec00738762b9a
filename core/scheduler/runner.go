package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/aqforecast/core/metrics"
	"github.com/kilianp07/aqforecast/core/monitoring"
	"github.com/kilianp07/aqforecast/infra/logger"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Jobs groups what the runner drives. HasModel decides the bootstrap path.
type Jobs struct {
	Predict  Job
	Train    Job
	HasModel func() bool
}

// State is the runner state.
type State int32

const (
	Idle State = iota
	RunningPredict
	RunningTrain
)

func (s State) String() string {
	switch s {
	case RunningPredict:
		return "running_predict"
	case RunningTrain:
		return "running_train"
	default:
		return "idle"
	}
}

const (
	jobPredict = "predict"
	jobTrain   = "train"
)

// Runner is the schedule state machine.
type Runner struct {
	cfg          Config
	jobs         Jobs
	predictSched cron.Schedule
	trainSched   cron.Schedule
	nextPredict  time.Time
	nextTrain    time.Time
	state        atomic.Int32

	clock   Clock
	sink    metrics.MetricsSink
	monitor monitoring.Monitor
	log     logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(r *Runner) { r.clock = c } }

// WithMetrics records job executions on sink.
func WithMetrics(s metrics.MetricsSink) Option { return func(r *Runner) { r.sink = s } }

// WithMonitor reports job failures to m.
func WithMonitor(m monitoring.Monitor) Option { return func(r *Runner) { r.monitor = m } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(r *Runner) { r.log = l } }

// New creates a Runner.
func New(cfg Config, jobs Jobs, opts ...Option) (*Runner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if jobs.Predict == nil || jobs.Train == nil || jobs.HasModel == nil {
		return nil, errors.New("predict, train and has-model hooks are required")
	}
	ps, err := cron.ParseStandard(cfg.PredictCron)
	if err != nil {
		return nil, fmt.Errorf("predict_cron: %w", err)
	}
	ts, err := cron.ParseStandard(cfg.TrainCron)
	if err != nil {
		return nil, fmt.Errorf("train_cron: %w", err)
	}
	r := &Runner{
		cfg:          cfg,
		jobs:         jobs,
		predictSched: ps,
		trainSched:   ts,
		clock:        realClock{},
		sink:         metrics.NopSink{},
		monitor:      monitoring.NopMonitor{},
		log:          logger.NopLogger{},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// State returns the current state.
func (r *Runner) State() State { return State(r.state.Load()) }

// Run bootstraps and then polls for due jobs until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.bootstrap(ctx)
	now := r.clock.Now()
	r.nextPredict = r.predictSched.Next(now)
	r.nextTrain = r.trainSched.Next(now)
	r.log.Infof("scheduler started, next predict %s, next train %s",
		r.nextPredict.Format(time.RFC3339), r.nextTrain.Format(time.RFC3339))

	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(r.cfg.PollInterval):
		}
		if err := r.tick(ctx); err != nil {
			r.log.Errorf("scheduler loop: %v, backing off %s", err, r.cfg.Backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-r.clock.After(r.cfg.Backoff):
			}
		}
	}
}

func (r *Runner) bootstrap(ctx context.Context) {
	if r.jobs.HasModel() {
		_ = r.runJob(ctx, jobPredict)
		return
	}
	r.log.Infof("no trained model found, training before the first predict")
	if err := r.runJob(ctx, jobTrain); err == nil {
		_ = r.runJob(ctx, jobPredict)
	}
}

// tick runs whatever is due. A successful train always chains a predict;
// a predict boundary reached at the same time is consumed by that run.
func (r *Runner) tick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	now := r.clock.Now()
	predictDue := !now.Before(r.nextPredict)
	if !now.Before(r.nextTrain) {
		r.nextTrain = r.trainSched.Next(now)
		if r.runJob(ctx, jobTrain) == nil {
			predictDue = true
		}
	}
	if predictDue && ctx.Err() == nil {
		r.nextPredict = r.predictSched.Next(r.clock.Now())
		_ = r.runJob(ctx, jobPredict)
	}
	return nil
}

func (r *Runner) runJob(ctx context.Context, name string) (err error) {
	job, state := r.jobs.Predict, RunningPredict
	if name == jobTrain {
		job, state = r.jobs.Train, RunningTrain
	}
	r.state.Store(int32(state))
	start := r.clock.Now()
	defer func() {
		tags := map[string]string{"job": name}
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", name, rec)
			r.monitor.CapturePanic(rec, tags)
		} else if err != nil {
			r.monitor.CaptureException(err, tags)
		}
		r.state.Store(int32(Idle))
		dur := r.clock.Now().Sub(start)
		if err != nil {
			r.log.Errorf("job %s failed after %s: %v", name, dur, err)
		} else {
			r.log.Infof("job %s done in %s", name, dur)
		}
		if rec, ok := r.sink.(metrics.JobRecorder); ok {
			if merr := rec.RecordJob(metrics.JobEvent{Job: name, Success: err == nil, Duration: dur, Time: start}); merr != nil {
				r.log.Warnf("record job: %v", merr)
			}
		}
	}()
	return job(ctx)
}
