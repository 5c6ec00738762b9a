package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/aqforecast/api/forecasts"
	"github.com/kilianp07/aqforecast/api/runs"
	"github.com/kilianp07/aqforecast/config"
	"github.com/kilianp07/aqforecast/core/artifact"
	"github.com/kilianp07/aqforecast/core/broker"
	"github.com/kilianp07/aqforecast/core/forecaststatus"
	coremetrics "github.com/kilianp07/aqforecast/core/metrics"
	"github.com/kilianp07/aqforecast/core/model"
	coremon "github.com/kilianp07/aqforecast/core/monitoring"
	"github.com/kilianp07/aqforecast/core/predict"
	"github.com/kilianp07/aqforecast/core/runlog"
	"github.com/kilianp07/aqforecast/core/scheduler"
	"github.com/kilianp07/aqforecast/core/training"
	"github.com/kilianp07/aqforecast/infra/logger"
	"github.com/kilianp07/aqforecast/infra/metrics"
	"github.com/kilianp07/aqforecast/infra/monitoring"
	"github.com/kilianp07/aqforecast/infra/mqtt"
	"github.com/kilianp07/aqforecast/infra/ngsi"
	"github.com/kilianp07/aqforecast/infra/osm"
	"github.com/kilianp07/aqforecast/infra/store"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// Service wires the forecasting pipeline: repository, artifacts, trainer,
// predictor, broker sync and the schedule runner.
type Service struct {
	Registry  *model.StationRegistry
	Artifacts *artifact.Store
	Trainer   *training.Trainer
	Predictor *predict.Predictor
	Runner    *scheduler.Runner
	Status    *forecaststatus.MemoryStore

	cfg      *config.Config
	repo     *store.Repository
	bus      *eventbus.Bus
	sink     coremetrics.MetricsSink
	runs     runlog.Store
	mqtt     *mqtt.PahoClient
	notifier *mqtt.Notifier
	monitor  coremon.Monitor
	log      logger.Logger

	consumersOnce sync.Once
	stopConsumers context.CancelFunc
	consumers     []<-chan struct{}
}

// New creates a Service from the configuration. The database connection is
// opened here; the broker and MQTT connections are established lazily or
// on demand.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	s := &Service{cfg: cfg, log: logger.New("service"), Status: forecaststatus.NewMemoryStore()}

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	s.monitor = mon

	if s.Registry, err = cfg.Registry(); err != nil {
		return nil, fmt.Errorf("stations: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.repo, err = store.Open(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	cfg := s.cfg
	s.bus = eventbus.New()
	s.Artifacts = artifact.NewStore(cfg.Artifacts.Dir)

	client, err := ngsi.NewClient(cfg.Broker.Client(), logger.New("ngsi"))
	if err != nil {
		return fmt.Errorf("broker client: %w", err)
	}
	syncer := broker.NewSyncer(client, cfg.Broker.Sync(), s.sink, logger.New("broker"))

	if s.Trainer, err = training.New(cfg.Model, s.Registry, s.repo, s.Artifacts, s.bus, logger.New("trainer")); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if s.Predictor, err = predict.New(cfg.Predict, s.Registry, s.repo, s.Artifacts, syncer, s.bus, logger.New("predictor")); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}

	s.runs, err = runlog.Open(cfg.RunLog)
	if errors.Is(err, runlog.ErrDisabled) {
		s.runs, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("run log: %w", err)
	}

	if cfg.MQTT.Enabled {
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.notifier = mqtt.NewNotifier(s.mqtt, cfg.MQTT, logger.New("alerts"))
	}

	s.Runner, err = scheduler.New(cfg.Scheduler, scheduler.Jobs{
		Predict:  func(ctx context.Context) error { _, err := s.Predictor.Predict(ctx); return err },
		Train:    func(ctx context.Context) error { _, err := s.Trainer.Train(ctx); return err },
		HasModel: s.Artifacts.Exists,
	},
		scheduler.WithMetrics(s.sink),
		scheduler.WithMonitor(s.monitor),
		scheduler.WithLogger(logger.New("scheduler")),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

// startConsumers attaches the bus subscribers. They run on their own
// context so Close can drain events published by the last job.
func (s *Service) startConsumers() {
	s.consumersOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopConsumers = cancel
		s.consumers = append(s.consumers,
			metrics.StartEventCollector(ctx, s.bus, s.sink),
			forecaststatus.Listen(ctx, s.bus, s.Status),
		)
		if s.runs != nil {
			s.consumers = append(s.consumers, runlog.Listen(ctx, s.bus, s.runs, logger.New("runlog")))
		}
		if s.notifier != nil {
			s.consumers = append(s.consumers, s.notifier.Listen(ctx, s.bus))
		}
	})
}

// Handler returns the HTTP surface served on metrics.listen.
func (s *Service) Handler() http.Handler {
	extra := map[string]http.Handler{
		"/api/forecasts": forecasts.NewHandler(s.Status),
		"/healthz": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"state": s.Runner.State().String()})
		}),
	}
	if s.runs != nil {
		extra["/api/runs"] = runs.NewHandler(s.runs, s.cfg.API.Token)
	}
	return metrics.NewMux(nil, extra)
}

// Run starts the HTTP listener and the schedule runner and blocks until the
// context is canceled.
func (s *Service) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.monitor.CapturePanic(rec, map[string]string{"module": "service"})
			s.monitor.Flush(2 * time.Second)
			err = fmt.Errorf("service panicked: %v", rec)
		}
	}()
	s.startConsumers()
	if s.cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, s.cfg.Metrics.Listen, s.Handler(), s.log); err != nil {
				s.log.Errorf("http server: %v", err)
			}
		}()
	}
	s.log.Infof("serving %d stations, artifacts in %s", s.Registry.Len(), s.Artifacts.Dir())
	return s.Runner.Run(ctx)
}

// TrainOnce runs a single training cycle.
func (s *Service) TrainOnce(ctx context.Context) (training.Report, error) {
	s.startConsumers()
	return s.Trainer.Train(ctx)
}

// PredictOnce runs a single predict cycle.
func (s *Service) PredictOnce(ctx context.Context) (predict.BatchReport, error) {
	s.startConsumers()
	return s.Predictor.Predict(ctx)
}

// RefreshRoads recounts the major roads around every station from
// OpenStreetMap and stores them as the road feature read by the predictor.
func (s *Service) RefreshRoads(ctx context.Context) (map[string]int, error) {
	rc := osm.NewRoadCounter(s.cfg.Roads, logger.New("osm"))
	return rc.Refresh(ctx, s.Registry.Stations(), s.repo)
}

// Close drains the bus subscribers and releases resources held by the
// service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
		if n := s.bus.Dropped(); n > 0 {
			s.log.Warnf("%d events dropped by slow subscribers", n)
		}
	}
	timeout := time.After(5 * time.Second)
	for _, done := range s.consumers {
		select {
		case <-done:
		case <-timeout:
		}
	}
	if s.stopConsumers != nil {
		s.stopConsumers()
	}
	var errs []error
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}
