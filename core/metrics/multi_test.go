package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordSink struct {
	count int
}

func (r *recordSink) RecordForecastResults([]ForecastResult) error {
	r.count++
	return nil
}

func (r *recordSink) RecordJob(JobEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordBatch(BatchEvent) error {
	r.count++
	return nil
}

type failingSink struct{}

func (failingSink) RecordForecastResults([]ForecastResult) error { return errors.New("boom") }

func TestMultiSinkForwards(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2, failingSink{})

	assert.Error(t, m.RecordForecastResults(nil))
	assert.NoError(t, m.RecordJob(JobEvent{Job: "predict"}))
	assert.NoError(t, m.RecordBatch(BatchEvent{Stations: 9, Failed: 1}))
	// neither recordSink implements TrainingRecorder
	assert.NoError(t, m.RecordTrainingRun(TrainingRunEvent{}))

	assert.Equal(t, 3, s1.count)
	assert.Equal(t, 3, s2.count)
}
