package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/aqforecast/core/metrics"
	"github.com/kilianp07/aqforecast/core/model"
	"github.com/kilianp07/aqforecast/infra/logger"
)

// Outcome tells how an upsert was applied.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "failed"
	}
}

// Client publishes a single entity. A create rejected with a conflict is
// retried exactly once as an attribute patch.
type Client interface {
	Upsert(ctx context.Context, e Entity) (Outcome, error)
}

// SyncConfig configures a Syncer.
type SyncConfig struct {
	EntityOptions
	MirrorObserved bool
}

// Syncer publishes forecasts to the broker.
type Syncer struct {
	client Client
	cfg    SyncConfig
	sink   metrics.MetricsSink
	log    logger.Logger
	now    func() time.Time
}

// NewSyncer creates a Syncer. sink and log may be nil.
func NewSyncer(c Client, cfg SyncConfig, sink metrics.MetricsSink, log logger.Logger) *Syncer {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Syncer{client: c, cfg: cfg, sink: sink, log: log, now: time.Now}
}

// Publish upserts the forecast entity of st and, when mirroring is enabled,
// the observed entity. Both are attempted even if the first one fails.
func (s *Syncer) Publish(ctx context.Context, st model.Station, f model.Forecast) error {
	now := s.now()
	var errs []error
	if err := s.upsert(ctx, st.ID, ForecastEntity(st, f, s.cfg.EntityOptions)); err != nil {
		errs = append(errs, err)
	}
	if s.cfg.MirrorObserved {
		if err := s.upsert(ctx, st.ID, ObservedEntity(st, f.PM25, now, s.cfg.EntityOptions)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) upsert(ctx context.Context, stationID string, e Entity) error {
	start := s.now()
	out, err := s.client.Upsert(ctx, e)
	ev := metrics.BrokerSyncEvent{
		StationID:  stationID,
		EntityType: e.Type(),
		Outcome:    out.String(),
		Latency:    s.now().Sub(start),
		Time:       start,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rec, ok := s.sink.(metrics.BrokerSyncRecorder); ok {
		if merr := rec.RecordBrokerSync(ev); merr != nil {
			s.log.Warnf("record broker sync: %v", merr)
		}
	}
	if err != nil {
		s.log.Errorf("sync %s for station %s: %v", e.Type(), stationID, err)
		return fmt.Errorf("%s %s: %w", e.Type(), e.ID(), err)
	}
	s.log.Debugw("entity synced", map[string]any{"station_id": stationID, "entity_id": e.ID(), "outcome": out.String()})
	return nil
}
