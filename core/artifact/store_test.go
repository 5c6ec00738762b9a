package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/aqforecast/core/graph"
	"github.com/kilianp07/aqforecast/core/nn"
	"github.com/kilianp07/aqforecast/core/series"
)

var stations = []string{"a", "b", "c"}

func testBundle(t *testing.T) Bundle {
	t.Helper()
	m, err := nn.New(4, 1)
	require.NoError(t, err)
	sc, err := series.FitMinMax([][]float64{{1, 2, 3}, {5, 6, 7}})
	require.NoError(t, err)
	g, err := graph.BuildFromDistances(3, func(i, j int) float64 { return float64(i + j + 1) }, 3)
	require.NoError(t, err)
	return Bundle{
		Header: Header{
			RunID:        uuid.NewString(),
			TrainedAt:    time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC),
			Stations:     stations,
			WindowLength: 4,
			HiddenSize:   4,
			StepSeconds:  3600,
		},
		Model:  m.Params(),
		Scaler: sc,
		Graph:  g,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "artifacts"))
	assert.False(t, s.Exists())

	b := testBundle(t)
	require.NoError(t, s.Save(b))
	assert.True(t, s.Exists())

	got, err := s.Load(Expectation{Stations: stations, WindowLength: 4})
	require.NoError(t, err)
	assert.Equal(t, b.Header.RunID, got.Header.RunID)
	assert.Equal(t, FormatVersion, got.Header.Format)
	assert.Equal(t, time.Hour, got.Header.Step())
	assert.Equal(t, b.Scaler, got.Scaler)
	assert.Equal(t, b.Graph, got.Graph)
	assert.Equal(t, b.Model, got.Model)

	for _, name := range []string{ModelFile, ScalerFile, GraphFile} {
		_, err := os.Stat(filepath.Join(s.Dir(), name+".tmp"))
		assert.True(t, os.IsNotExist(err), "leftover temp file for %s", name)
	}
}

func TestSaveKeepsPreviousVersion(t *testing.T) {
	s := NewStore(t.TempDir())
	first := testBundle(t)
	require.NoError(t, s.Save(first))
	second := testBundle(t)
	require.NoError(t, s.Save(second))

	prev := NewStore(s.Dir())
	var doc modelDoc
	require.NoError(t, prev.read(ModelFile+".prev", &doc))
	assert.Equal(t, first.Header.RunID, doc.Header.RunID)

	got, err := s.Load(Expectation{Stations: stations})
	require.NoError(t, err)
	assert.Equal(t, second.Header.RunID, got.Header.RunID)
}

func TestLoadMissingArtifact(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load(Expectation{Stations: stations})
	assert.ErrorIs(t, err, ErrMissingArtifact)

	require.NoError(t, s.Save(testBundle(t)))
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), ScalerFile)))
	_, err = s.Load(Expectation{Stations: stations})
	assert.ErrorIs(t, err, ErrMissingArtifact)
}

func TestLoadDetectsMixedRuns(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.Save(testBundle(t)))
	scaler, err := os.ReadFile(filepath.Join(dir, ScalerFile))
	require.NoError(t, err)

	require.NoError(t, s.Save(testBundle(t)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScalerFile), scaler, 0o644))

	_, err = s.Load(Expectation{Stations: stations})
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestLoadRecoversFromInterruptedSave(t *testing.T) {
	tests := []struct {
		name    string
		written []string
	}{
		{name: "graph written", written: []string{GraphFile}},
		{name: "graph and scaler written", written: []string{GraphFile, ScalerFile}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir())
			first := testBundle(t)
			require.NoError(t, s.Save(first))

			next := testBundle(t)
			next.Header.Format = FormatVersion
			for _, name := range tt.written {
				var v any = graphDoc{Header: next.Header, Graph: next.Graph}
				if name == ScalerFile {
					v = scalerDoc{Header: next.Header, Scaler: next.Scaler}
				}
				require.NoError(t, s.writeAtomic(name, v))
			}

			assert.True(t, s.Exists())
			got, err := s.Load(Expectation{Stations: stations, WindowLength: 4})
			require.NoError(t, err)
			assert.Equal(t, first.Header.RunID, got.Header.RunID)
			assert.Equal(t, first.Graph, got.Graph)
			assert.Equal(t, first.Scaler, got.Scaler)

			require.NoError(t, s.Save(next))
			got, err = s.Load(Expectation{Stations: stations})
			require.NoError(t, err)
			assert.Equal(t, next.Header.RunID, got.Header.RunID)
		})
	}
}

func TestLoadDetectsConfigurationDrift(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(testBundle(t)))

	_, err := s.Load(Expectation{Stations: []string{"b", "a", "c"}})
	assert.ErrorIs(t, err, ErrArtifactMismatch)
	_, err = s.Load(Expectation{Stations: stations, WindowLength: 6})
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestLoadCorruptFile(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(testBundle(t)))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), GraphFile), []byte("{"), 0o644))
	_, err := s.Load(Expectation{Stations: stations})
	assert.ErrorIs(t, err, ErrArtifactMismatch)
}

func TestSaveRejectsInconsistentBundle(t *testing.T) {
	s := NewStore(t.TempDir())
	b := testBundle(t)
	b.Header.HiddenSize = 8
	assert.ErrorIs(t, s.Save(b), ErrArtifactMismatch)

	b = testBundle(t)
	b.Header.Stations = []string{"a", "b"}
	assert.ErrorIs(t, s.Save(b), ErrArtifactMismatch)
	assert.False(t, s.Exists())
}
