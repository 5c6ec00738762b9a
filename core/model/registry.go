package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StationRegistry is the ordered list of stations shared by the graph, the
// model input axis and the scaler columns.
type StationRegistry struct {
	stations []Station
	index    map[string]int
}

// NewStationRegistry validates the stations and freezes their order.
func NewStationRegistry(stations []Station) (*StationRegistry, error) {
	if len(stations) == 0 {
		return nil, fmt.Errorf("station registry is empty")
	}
	r := &StationRegistry{
		stations: make([]Station, len(stations)),
		index:    make(map[string]int, len(stations)),
	}
	for i, s := range stations {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station id %s", s.ID)
		}
		r.index[s.ID] = i
		r.stations[i] = s
	}
	return r, nil
}

// Stations returns a copy of the ordered station list.
func (r *StationRegistry) Stations() []Station {
	out := make([]Station, len(r.stations))
	copy(out, r.stations)
	return out
}

// IDs returns the station identifiers in registry order.
func (r *StationRegistry) IDs() []string {
	ids := make([]string, len(r.stations))
	for i, s := range r.stations {
		ids[i] = s.ID
	}
	return ids
}

// Len returns the number of stations.
func (r *StationRegistry) Len() int { return len(r.stations) }

// Index returns the node index of the station.
func (r *StationRegistry) Index(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// At returns the station at node index i.
func (r *StationRegistry) At(i int) Station { return r.stations[i] }

type registryFile struct {
	Stations []Station `json:"stations" yaml:"stations"`
}

// LoadRegistry reads a station registry from a JSON or YAML file.
func LoadRegistry(path string) (*StationRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeRegistry(f, format)
}

// DecodeRegistry reads a station registry from r in the given format.
func DecodeRegistry(r io.Reader, format string) (*StationRegistry, error) {
	var rf registryFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&rf); err != nil {
			return nil, fmt.Errorf("decode stations: %w", err)
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&rf); err != nil {
			return nil, fmt.Errorf("decode stations: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return NewStationRegistry(rf.Stations)
}
