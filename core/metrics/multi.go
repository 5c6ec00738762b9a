package metrics

// MultiSink fans events out to multiple sinks. Optional recorder interfaces
// are forwarded only to the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordForecastResults forwards the results to all sinks, returning the first error encountered.
func (m *MultiSink) RecordForecastResults(res []ForecastResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordForecastResults(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrainingRun forwards training summaries.
func (m *MultiSink) RecordTrainingRun(ev TrainingRunEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TrainingRecorder); ok {
			if err := rec.RecordTrainingRun(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBatch forwards predict run summaries.
func (m *MultiSink) RecordBatch(ev BatchEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(BatchRecorder); ok {
			if err := rec.RecordBatch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBrokerSync forwards broker upserts.
func (m *MultiSink) RecordBrokerSync(ev BrokerSyncEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(BrokerSyncRecorder); ok {
			if err := rec.RecordBrokerSync(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordJob forwards job executions.
func (m *MultiSink) RecordJob(ev JobEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(JobRecorder); ok {
			if err := rec.RecordJob(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
