package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/aqforecast/core/events"
	"github.com/kilianp07/aqforecast/internal/eventbus"
)

var t0 = time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)

func sampleRecords() []Record {
	train, _ := FromEvent(events.TrainingCompleted{RunID: "t1", Samples: 40, Epochs: 100, FinalLoss: 0.01, Time: t0})
	pred, _ := FromEvent(events.ForecastBatch{RunID: "p1", Time: t0.Add(15 * time.Minute), Results: []events.StationForecast{
		{StationID: "1", PM25: 21.4, ValidFrom: t0.Add(30 * time.Minute), Status: "ok"},
		{StationID: "2", Status: "skipped", Reason: "no data"},
	}})
	failed, _ := FromEvent(events.TrainingCompleted{RunID: "t2", Time: t0.Add(24 * time.Hour), Err: errors.New("data insufficient")})
	return []Record{train, pred, failed}
}

func storeContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range sampleRecords() {
		require.NoError(t, st.Append(ctx, r))
	}

	all, err := st.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t1", all[0].RunID)
	assert.Equal(t, "t2", all[2].RunID)
	assert.Equal(t, "data insufficient", all[2].Error)
	assert.Nil(t, all[2].Train)

	preds, err := st.Query(ctx, Query{Kind: KindPredict})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	require.NotNil(t, preds[0].Forecast)
	assert.Equal(t, 1, preds[0].Forecast.Succeeded)
	assert.Equal(t, 1, preds[0].Forecast.Failed)

	byStation, err := st.Query(ctx, Query{StationID: "2"})
	require.NoError(t, err)
	require.Len(t, byStation, 1)
	assert.Equal(t, "p1", byStation[0].RunID)

	window, err := st.Query(ctx, Query{Start: t0.Add(time.Minute), End: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, KindPredict, window[0].Kind)
}

func TestRotatingJSONLStore(t *testing.T) {
	st, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "runs.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	storeContract(t, st)
}

func TestRotatingJSONLStore_ReadsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.jsonl")
	old := Record{Kind: KindTrain, RunID: "old", Timestamp: t0.Add(-48 * time.Hour)}
	b, err := json.Marshal(old)
	require.NoError(t, err)
	backup := filepath.Join(dir, "runs-2025-03-08T02-00-00.000.jsonl")
	require.NoError(t, os.WriteFile(backup, append(b, '\n'), 0o644))

	st, err := NewRotatingJSONLStore(path, 1, 2, 0)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	require.NoError(t, st.Append(context.Background(), Record{Kind: KindTrain, RunID: "new", Timestamp: t0}))

	out, err := st.Query(context.Background(), Query{Kind: KindTrain})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "old", out[0].RunID)
	assert.Equal(t, "new", out[1].RunID)
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	storeContract(t, st)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Backend: "sqlite", Path: filepath.Join(dir, "r.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(Config{Path: filepath.Join(dir, "r.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &RotatingJSONLStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(Config{Backend: "none"})
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = Open(Config{Backend: "csv"})
	assert.Error(t, err)
}

func TestFromEventIgnoresOthers(t *testing.T) {
	_, ok := FromEvent("hello")
	assert.False(t, ok)
}

func TestFromEventAbortedPredict(t *testing.T) {
	rec, ok := FromEvent(events.ForecastBatch{RunID: "p9", Time: t0, FailureRate: 1, Err: errors.New("artifact missing: model.json")})
	require.True(t, ok)
	assert.Equal(t, KindPredict, rec.Kind)
	assert.Equal(t, "artifact missing: model.json", rec.Error)
	require.NotNil(t, rec.Forecast)
	assert.Empty(t, rec.Forecast.Stations)
}

func TestListen(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := Listen(ctx, bus, st, nil)
	bus.Publish(events.TrainingCompleted{RunID: "t1", Time: t0, Epochs: 3})

	assert.Eventually(t, func() bool {
		out, err := st.Query(context.Background(), Query{})
		return err == nil && len(out) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
