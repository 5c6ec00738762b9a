package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kilianp07/aqforecast/core/graph"
	"github.com/kilianp07/aqforecast/core/nn"
	"github.com/kilianp07/aqforecast/core/series"
)

const (
	ModelFile  = "model.json"
	ScalerFile = "scaler.json"
	GraphFile  = "graph.json"
)

type modelDoc struct {
	Header Header    `json:"header"`
	Params nn.Params `json:"params"`
}

type scalerDoc struct {
	Header Header              `json:"header"`
	Scaler series.MinMaxScaler `json:"scaler"`
}

type graphDoc struct {
	Header Header      `json:"header"`
	Graph  graph.Graph `json:"graph"`
}

// Store reads and writes artifact bundles in a directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on Save.
func NewStore(dir string) *Store { return &Store{dir: dir} }

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether a model file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, ModelFile))
	return err == nil
}

// Save writes the bundle. Each file is replaced atomically and the previous
// version is kept with a .prev suffix. The model file is written last so a
// reader never sees a new model next to an old scaler without noticing the
// run id mismatch.
func (s *Store) Save(b Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	b.Header.Format = FormatVersion
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	docs := []struct {
		name string
		v    any
	}{
		{GraphFile, graphDoc{Header: b.Header, Graph: b.Graph}},
		{ScalerFile, scalerDoc{Header: b.Header, Scaler: b.Scaler}},
		{ModelFile, modelDoc{Header: b.Header, Params: b.Model}},
	}
	for _, d := range docs {
		if err := s.writeAtomic(d.name, d.v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeAtomic(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".prev"); err != nil {
			return fmt.Errorf("backup %s: %w", name, err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Load reads the three artifact files, checks that they come from the same
// run and that they match e. The model file is written last, so when the
// scaler or graph belongs to another run, Load falls back to its .prev copy
// if that one matches the model.
func (s *Store) Load(e Expectation) (Bundle, error) {
	var md modelDoc
	if err := s.read(ModelFile, &md); err != nil {
		return Bundle{}, err
	}
	if md.Header.Format != FormatVersion {
		return Bundle{}, fmt.Errorf("%w: format %d, want %d", ErrArtifactMismatch, md.Header.Format, FormatVersion)
	}
	sd, err := readRun(s, ScalerFile, md.Header, func(d scalerDoc) Header { return d.Header })
	if err != nil {
		return Bundle{}, err
	}
	gd, err := readRun(s, GraphFile, md.Header, func(d graphDoc) Header { return d.Header })
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{Header: md.Header, Model: md.Params, Scaler: sd.Scaler, Graph: gd.Graph}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	if err := b.Check(e); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// readRun decodes name and returns it when its header belongs to the same
// run as want, trying name.prev when the current file does not.
func readRun[T any](s *Store, name string, want Header, header func(T) Header) (T, error) {
	var cur T
	if err := s.read(name, &cur); err != nil {
		return cur, err
	}
	if header(cur).sameRun(want) {
		return cur, nil
	}
	var prev T
	if err := s.read(name+".prev", &prev); err == nil && header(prev).sameRun(want) {
		return prev, nil
	}
	return cur, fmt.Errorf("%w: files come from different training runs", ErrArtifactMismatch)
}

func (s *Store) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrMissingArtifact, name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrArtifactMismatch, name, err)
	}
	return nil
}
