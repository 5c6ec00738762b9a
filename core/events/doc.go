// Package events defines the forecasting events emitted on the event bus.
//
// Available event types:
//   - TrainingCompleted: a training run finished, successfully or not
//   - ForecastBatch: a predict run finished with per-station outcomes
package events
