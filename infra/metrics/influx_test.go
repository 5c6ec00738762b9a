package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/aqforecast/core/metrics"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func lineProtocol(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordForecastResults(t *testing.T) {
	rec := &bodyRecorder{}
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Date(2025, 3, 1, 10, 17, 0, 0, time.UTC)
	from := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, sink.RecordForecastResults([]coremetrics.ForecastResult{
		{RunID: "r1", StationID: "13756", PM25: 21.456, Status: "ok", ValidFrom: from, Time: now},
	}))

	p := write.NewPointWithMeasurement("forecast_result").
		AddTag("station_id", "13756").
		AddTag("status", "ok").
		AddTag("run_id", "r1").
		AddField("pm25", 21.456).
		AddField("valid_from", "2025-03-01T10:30:00Z").
		SetTime(now)
	assert.Equal(t, []string{lineProtocol(p)}, rec.bodies)
}

func TestInfluxSink_RecordBrokerSync(t *testing.T) {
	rec := &bodyRecorder{}
	sink := NewInfluxSink(rec.server(t).URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	require.NoError(t, sink.RecordBrokerSync(coremetrics.BrokerSyncEvent{
		StationID:  "13756",
		EntityType: "AirQualityForecast",
		Outcome:    "failed",
		Latency:    1500 * time.Microsecond,
		Error:      "broker rejected",
		Time:       now,
	}))

	p := write.NewPointWithMeasurement("broker_sync").
		AddTag("station_id", "13756").
		AddTag("entity_type", "AirQualityForecast").
		AddTag("outcome", "failed").
		AddField("latency_ms", 1.5).
		AddField("error", "broker rejected").
		SetTime(now)
	assert.Equal(t, []string{lineProtocol(p)}, rec.bodies)
}

func TestInfluxSink_RecordTrainingRunAndJob(t *testing.T) {
	rec := &bodyRecorder{}
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	require.NoError(t, sink.RecordTrainingRun(coremetrics.TrainingRunEvent{RunID: "r2", Samples: 10, Epochs: 100, FinalLoss: 0.5, Duration: 2 * time.Second, Time: now}))
	require.NoError(t, sink.RecordJob(coremetrics.JobEvent{Job: "train", Success: true, Duration: time.Second, Time: now}))

	p1 := write.NewPointWithMeasurement("training_run").
		AddTag("run_id", "r2").
		AddField("samples", 10).
		AddField("epochs", 100).
		AddField("final_loss", 0.5).
		AddField("duration_s", 2.0).
		SetTime(now)
	p2 := write.NewPointWithMeasurement("job_run").
		AddTag("job", "train").
		AddTag("success", "true").
		AddField("duration_s", 1.0).
		SetTime(now)
	assert.Equal(t, []string{lineProtocol(p1), lineProtocol(p2)}, rec.bodies)
}

func TestInfluxSink_RecordBatch(t *testing.T) {
	rec := &bodyRecorder{}
	sink := NewInfluxSink(rec.server(t).URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	require.NoError(t, sink.RecordBatch(coremetrics.BatchEvent{RunID: "p7", Stations: 9, Failed: 1, FailureRate: 1.0 / 9, Time: now}))

	p := write.NewPointWithMeasurement("forecast_batch").
		AddTag("run_id", "p7").
		AddTag("aborted", "false").
		AddField("stations", 9).
		AddField("failed", 1).
		AddField("failure_rate", 0.111).
		SetTime(now)
	assert.Equal(t, []string{lineProtocol(p)}, rec.bodies)
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	assert.IsType(t, coremetrics.NopSink{}, sink)
	assert.True(t, called, "health endpoint not called")
}
