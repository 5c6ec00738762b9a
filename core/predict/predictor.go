package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/aqforecast/core/artifact"
	"github.com/kilianp07/aqforecast/core/model"
	"github.com/kilianp07/aqforecast/core/nn"
	"github.com/kilianp07/aqforecast/core/series"
	"github.com/kilianp07/aqforecast/infra/logger"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// neutralInput is fed for stations without usable history so the network
// still sees every node. It is the middle of the scaled range.
const neutralInput = 0.5

// RecentSource returns up to limit of the most recent observations of a
// station, oldest first.
type RecentSource interface {
	Recent(ctx context.Context, stationID string, limit int) ([]model.Observation, error)
}

// WeatherSource is an optional feature source.
type WeatherSource interface {
	LatestWeather(ctx context.Context, stationID string) (model.Weather, error)
}

// RoadSource is an optional feature source.
type RoadSource interface {
	RoadCount(ctx context.Context, stationID string) (int, error)
}

// Publisher hands a forecast to the broker.
type Publisher interface {
	Publish(ctx context.Context, st model.Station, f model.Forecast) error
}

// Predictor runs one inference batch over the whole station network.
type Predictor struct {
	cfg      Config
	registry *model.StationRegistry
	source   RecentSource
	store    *artifact.Store
	pub      Publisher
	bus      eventbus.EventBus
	log      logger.Logger
	now      func() time.Time
}

// New creates a Predictor. bus and log may be nil.
func New(cfg Config, reg *model.StationRegistry, src RecentSource, store *artifact.Store, pub Publisher, bus eventbus.EventBus, log logger.Logger) (*Predictor, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil || src == nil || store == nil || pub == nil {
		return nil, errors.New("predictor requires a registry, a source, a store and a publisher")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Predictor{cfg: cfg, registry: reg, source: src, store: store, pub: pub, bus: bus, log: log, now: time.Now}, nil
}

type stationInput struct {
	history []float64
	latest  time.Time
	err     error
}

// Predict loads the artifacts, forecasts every station and publishes the
// successful ones in registry order. A missing or mismatching bundle aborts
// the batch; per-station failures are recorded in the report. Every run,
// aborted or not, ends with a ForecastBatch event.
func (p *Predictor) Predict(ctx context.Context) (BatchReport, error) {
	start := p.now()
	rep := BatchReport{RunID: uuid.NewString(), Time: start.UTC()}

	bundle, err := p.store.Load(artifact.Expectation{Stations: p.registry.IDs(), WindowLength: p.cfg.Window})
	if err != nil {
		return p.abort(&rep, start, err)
	}
	net, err := nn.FromParams(bundle.Model)
	if err != nil {
		return p.abort(&rep, start, fmt.Errorf("%w: %v", artifact.ErrArtifactMismatch, err))
	}
	l := bundle.Header.WindowLength
	p.log.Debugf("using model %s trained %s (window %d, step %s)",
		bundle.Header.RunID, bundle.Header.TrainedAt.Format(time.RFC3339), l, bundle.Header.Step())
	stations := p.registry.Stations()

	inputs := make([]stationInput, len(stations))
	usable := 0
	for i, st := range stations {
		if err := ctx.Err(); err != nil {
			return p.abort(&rep, start, err)
		}
		inputs[i] = p.fetch(ctx, st, l)
		if inputs[i].err != nil {
			p.log.Warnf("station %s skipped at fetch: %v", st.ID, inputs[i].err)
			continue
		}
		usable++
	}
	if usable == 0 {
		err := fmt.Errorf("%w: no station has recent observations", series.ErrDataInsufficient)
		rep.Results = p.skippedResults(stations, inputs)
		p.finish(&rep, start, err)
		return rep, err
	}

	histories := make([][]float64, len(stations))
	for i, in := range inputs {
		histories[i] = make([]float64, l)
		for k := range histories[i] {
			if in.err != nil {
				histories[i][k] = neutralInput
				continue
			}
			histories[i][k] = bundle.Scaler.TransformValue(i, in.history[k])
		}
	}
	x, err := series.Latest(histories, l)
	if err != nil {
		return p.abort(&rep, start, fmt.Errorf("build input: %w", err))
	}
	out, err := net.Predict(x, bundle.Graph.Normalized())
	if err != nil {
		return p.abort(&rep, start, fmt.Errorf("run model: %w", err))
	}

	rep.Results = make([]StationResult, len(stations))
	for i, st := range stations {
		res := StationResult{StationID: st.ID}
		if inputs[i].err != nil {
			res.Status = StatusSkipped
			res.Reason = inputs[i].err.Error()
			rep.Results[i] = res
			continue
		}
		res.Value = clampRound(bundle.Scaler.InverseValue(i, out[i]))
		res.ValidFrom = NextSlot(inputs[i].latest, p.cfg.Slot)
		res.ValidTo = res.ValidFrom.Add(p.cfg.Slot)
		p.logContext(ctx, st, res.Value)

		f := model.Forecast{StationID: st.ID, PM25: res.Value, ValidFrom: res.ValidFrom, ValidTo: res.ValidTo, ObservedAt: inputs[i].latest}
		if err := p.pub.Publish(ctx, st, f); err != nil {
			res.Status = StatusPublishFailed
			res.Reason = err.Error()
			p.log.Errorf("station %s failed at publish: %v", st.ID, err)
		} else {
			res.Status = StatusOK
		}
		rep.Results[i] = res
	}
	p.finish(&rep, start, nil)
	p.log.Infof("predict run %s: %d published, %d failed", rep.RunID, rep.Succeeded(), rep.Failed())
	return rep, nil
}

func (p *Predictor) fetch(ctx context.Context, st model.Station, l int) stationInput {
	obs, err := p.source.Recent(ctx, st.ID, l)
	if err != nil {
		return stationInput{err: fmt.Errorf("load observations: %w", err)}
	}
	vals := make([]float64, 0, len(obs))
	var latest time.Time
	for _, o := range obs {
		if math.IsNaN(o.PM25) || math.IsInf(o.PM25, 0) {
			continue
		}
		vals = append(vals, o.PM25)
		if o.Time.After(latest) {
			latest = o.Time
		}
	}
	if len(vals) == 0 {
		return stationInput{err: fmt.Errorf("%w: no observations", series.ErrDataInsufficient)}
	}
	if len(vals) > l {
		vals = vals[len(vals)-l:]
	}
	if len(vals) < l {
		if p.cfg.Padding == PaddingStrict {
			return stationInput{err: fmt.Errorf("%w: %d observations, need %d", series.ErrDataInsufficient, len(vals), l)}
		}
		padded := make([]float64, l-len(vals), l)
		for k := range padded {
			padded[k] = vals[0]
		}
		vals = append(padded, vals...)
	}
	return stationInput{history: vals, latest: latest}
}

func (p *Predictor) skippedResults(stations []model.Station, inputs []stationInput) []StationResult {
	res := make([]StationResult, len(stations))
	for i, st := range stations {
		res[i] = StationResult{StationID: st.ID, Status: StatusSkipped, Reason: inputs[i].err.Error()}
	}
	return res
}

// logContext attaches the optional weather and road features to the debug
// log. They do not feed the network.
func (p *Predictor) logContext(ctx context.Context, st model.Station, value float64) {
	fields := map[string]any{"station_id": st.ID, "pm25": value}
	if ws, ok := p.source.(WeatherSource); ok {
		if w, err := ws.LatestWeather(ctx, st.ID); err == nil {
			fields["temperature"] = w.Temperature
			fields["humidity"] = w.Humidity
			fields["wind_speed"] = w.WindSpeed
		}
	}
	if rs, ok := p.source.(RoadSource); ok {
		if n, err := rs.RoadCount(ctx, st.ID); err == nil {
			fields["road_count"] = n
		}
	}
	p.log.Debugw("station forecast", fields)
}

func (p *Predictor) abort(rep *BatchReport, start time.Time, err error) (BatchReport, error) {
	p.log.Errorf("predict aborted: %v", err)
	p.finish(rep, start, err)
	return *rep, err
}

func (p *Predictor) finish(rep *BatchReport, start time.Time, err error) {
	rep.Duration = p.now().Sub(start)
	if p.bus == nil {
		return
	}
	ev := rep.Event()
	if err != nil {
		ev.Err = err
		ev.FailureRate = 1
	}
	p.bus.Publish(ev)
}

func clampRound(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return math.Round(v*100) / 100
}
