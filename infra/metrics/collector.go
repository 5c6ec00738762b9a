package metrics

import (
	"context"

	"github.com/kilianp07/aqforecast/core/events"
	coremetrics "github.com/kilianp07/aqforecast/core/metrics"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// training and forecast events. It stops when the context is canceled or the
// bus is closed; the returned channel is closed once the collector exits.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	if sink == nil {
		bus = nil
	}
	return eventbus.Consume(ctx, bus, func(ev eventbus.Event) { record(sink, ev) })
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.ForecastBatch:
		res := make([]coremetrics.ForecastResult, len(e.Results))
		for i, r := range e.Results {
			res[i] = coremetrics.ForecastResult{
				RunID:     e.RunID,
				StationID: r.StationID,
				PM25:      r.PM25,
				Status:    r.Status,
				ValidFrom: r.ValidFrom,
				Time:      e.Time,
			}
		}
		if len(res) > 0 {
			_ = sink.RecordForecastResults(res)
		}
		if r, ok := sink.(coremetrics.BatchRecorder); ok {
			failed := 0
			for _, s := range e.Results {
				if s.Status != "ok" {
					failed++
				}
			}
			_ = r.RecordBatch(coremetrics.BatchEvent{
				RunID:       e.RunID,
				Stations:    len(e.Results),
				Failed:      failed,
				FailureRate: e.FailureRate,
				Aborted:     e.Err != nil,
				Time:        e.Time,
			})
		}
	case events.TrainingCompleted:
		if e.Err != nil {
			return
		}
		if r, ok := sink.(coremetrics.TrainingRecorder); ok {
			_ = r.RecordTrainingRun(coremetrics.TrainingRunEvent{
				RunID:     e.RunID,
				Samples:   e.Samples,
				Epochs:    e.Epochs,
				FinalLoss: e.FinalLoss,
				Duration:  e.Duration,
				Time:      e.Time,
			})
		}
	}
}
