package model

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStationRegistryKeepsOrder(t *testing.T) {
	reg, err := NewStationRegistry([]Station{
		{ID: "ThuDuc", Lat: 10.8231, Lon: 106.7711},
		{ID: "District12", Lat: 10.8672, Lon: 106.6415},
		{ID: "HocMon", Lat: 10.8763, Lon: 106.5941},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ThuDuc", "District12", "HocMon"}, reg.IDs())
	i, ok := reg.Index("HocMon")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	assert.Equal(t, "District12", reg.At(1).ID)
}

func TestNewStationRegistryErrors(t *testing.T) {
	_, err := NewStationRegistry(nil)
	assert.Error(t, err)
	_, err = NewStationRegistry([]Station{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)
	_, err = NewStationRegistry([]Station{{ID: "a", Lat: 91}})
	assert.Error(t, err)
	_, err = NewStationRegistry([]Station{{Lat: 1, Lon: 1}})
	assert.Error(t, err)
}

func TestDecodeRegistryYAML(t *testing.T) {
	data := "stations:\n  - id: a\n    lat: 10.1\n    lon: 106.2\n  - id: b\n    lat: 10.2\n    lon: 106.3\n"
	reg, err := DecodeRegistry(bytes.NewBufferString(data), "yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.InDelta(t, 106.3, reg.At(1).Lon, 1e-9)
}

func TestLoadRegistryJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stations":[{"id":"x","lat":1,"lon":2}]}`), 0o644))
	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, reg.IDs())

	_, err = DecodeRegistry(bytes.NewBufferString("{}"), "toml")
	assert.Error(t, err)
}
