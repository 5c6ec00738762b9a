package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/aqforecast/core/artifact"
	"github.com/kilianp07/aqforecast/core/events"
	"github.com/kilianp07/aqforecast/core/graph"
	"github.com/kilianp07/aqforecast/core/model"
	"github.com/kilianp07/aqforecast/core/nn"
	"github.com/kilianp07/aqforecast/core/series"
	"github.com/kilianp07/aqforecast/infra/logger"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// ObservationSource returns the full PM2.5 history of the given stations.
type ObservationSource interface {
	History(ctx context.Context, stationIDs []string) (map[string][]model.Observation, error)
}

// Report summarises a training run.
type Report struct {
	RunID     string
	Timesteps int
	Samples   int
	Epochs    int
	FinalLoss float64
	Duration  time.Duration
	TrainedAt time.Time
}

// Trainer fits the forecast network and persists the resulting bundle.
type Trainer struct {
	cfg      Config
	registry *model.StationRegistry
	source   ObservationSource
	store    *artifact.Store
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time
}

// New creates a Trainer. bus and log may be nil.
func New(cfg Config, reg *model.StationRegistry, src ObservationSource, store *artifact.Store, bus eventbus.EventBus, log logger.Logger) (*Trainer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || src == nil || store == nil {
		return nil, errors.New("trainer requires a registry, a source and a store")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Trainer{cfg: cfg, registry: reg, source: src, store: store, bus: bus, log: log, now: time.Now}, nil
}

// Train runs one full training cycle. When fewer than window+2 aligned
// timesteps exist it returns series.ErrDataInsufficient and leaves any
// existing artifacts untouched.
func (t *Trainer) Train(ctx context.Context) (Report, error) {
	start := t.now()
	rep, err := t.train(ctx)
	rep.Duration = t.now().Sub(start)
	if t.bus != nil {
		t.bus.Publish(events.TrainingCompleted{
			RunID:     rep.RunID,
			Samples:   rep.Samples,
			Epochs:    rep.Epochs,
			FinalLoss: rep.FinalLoss,
			Duration:  rep.Duration,
			Time:      t.now(),
			Err:       err,
		})
	}
	if err != nil {
		if errors.Is(err, series.ErrDataInsufficient) {
			t.log.Warnf("training skipped: %v", err)
		} else {
			t.log.Errorf("training failed: %v", err)
		}
		return rep, err
	}
	t.log.Infof("training run %s finished: %d samples, %d epochs, loss %.6f in %s",
		rep.RunID, rep.Samples, rep.Epochs, rep.FinalLoss, rep.Duration)
	return rep, nil
}

func (t *Trainer) train(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString()}
	stations := t.registry.Stations()

	obs, err := t.source.History(ctx, t.registry.IDs())
	if err != nil {
		return rep, fmt.Errorf("load history: %w", err)
	}
	aligned, err := series.Align(stations, obs, t.cfg.Step)
	if err != nil {
		return rep, err
	}
	rep.Timesteps = aligned.Len()
	if need := t.cfg.Window + 2; aligned.Len() < need {
		return rep, fmt.Errorf("%w: %d aligned timesteps, need %d", series.ErrDataInsufficient, aligned.Len(), need)
	}

	scaler, err := series.FitMinMax(aligned.Values)
	if err != nil {
		return rep, err
	}
	snaps, err := series.Window(scaler.Transform(aligned.Values), t.cfg.Window)
	if err != nil {
		return rep, err
	}
	g, err := graph.Build(stations, t.cfg.ThresholdKm)
	if err != nil {
		return rep, err
	}
	t.log.Debugw("training data prepared", map[string]any{
		"run_id":    rep.RunID,
		"timesteps": aligned.Len(),
		"samples":   len(snaps),
		"edges":     len(g.Edges),
	})

	net, err := nn.New(t.cfg.Hidden, t.cfg.Seed)
	if err != nil {
		return rep, err
	}
	prop := g.Normalized()
	opt := nn.NewAdam(t.cfg.LearningRate)
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		var total float64
		for _, s := range snaps {
			loss, err := net.TrainStep(s.X, s.Y, prop, opt)
			if err != nil {
				return rep, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			total += loss
		}
		rep.Epochs = epoch
		if epoch%10 == 0 {
			t.log.Debugf("epoch %d/%d loss %.6f", epoch, t.cfg.Epochs, total/float64(len(snaps)))
		}
	}
	// FinalLoss is measured on the weights that get saved.
	var total float64
	for _, s := range snaps {
		loss, err := net.Loss(s.X, s.Y, prop)
		if err != nil {
			return rep, err
		}
		total += loss
	}
	rep.FinalLoss = total / float64(len(snaps))
	rep.Samples = len(snaps)
	rep.TrainedAt = t.now().UTC()

	bundle := artifact.Bundle{
		Header: artifact.Header{
			RunID:        rep.RunID,
			TrainedAt:    rep.TrainedAt,
			Stations:     t.registry.IDs(),
			WindowLength: t.cfg.Window,
			HiddenSize:   t.cfg.Hidden,
			StepSeconds:  int64(t.cfg.Step / time.Second),
		},
		Model:  net.Params(),
		Scaler: scaler,
		Graph:  g,
	}
	if err := t.store.Save(bundle); err != nil {
		return rep, fmt.Errorf("save artifacts: %w", err)
	}
	return rep, nil
}
