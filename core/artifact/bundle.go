package artifact

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kilianp07/aqforecast/core/graph"
	"github.com/kilianp07/aqforecast/core/nn"
	"github.com/kilianp07/aqforecast/core/series"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion = 1

var (
	// ErrMissingArtifact is returned when one of the artifact files is absent.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrArtifactMismatch is returned when artifact files disagree with each
	// other or with the configured station set.
	ErrArtifactMismatch = errors.New("artifact mismatch")
)

// Header identifies the run an artifact file belongs to.
type Header struct {
	Format       int       `json:"format"`
	RunID        string    `json:"run_id"`
	TrainedAt    time.Time `json:"trained_at"`
	Stations     []string  `json:"stations"`
	WindowLength int       `json:"window_length"`
	HiddenSize   int       `json:"hidden_size"`
	StepSeconds  int64     `json:"step_seconds"`
}

// Bundle is everything needed to run inference.
type Bundle struct {
	Header Header
	Model  nn.Params
	Scaler series.MinMaxScaler
	Graph  graph.Graph
}

// Expectation describes what the caller's configuration requires of a bundle.
type Expectation struct {
	Stations     []string
	WindowLength int
}

// Validate checks the internal consistency of the bundle.
func (b Bundle) Validate() error {
	n := len(b.Header.Stations)
	if n == 0 {
		return fmt.Errorf("%w: header lists no stations", ErrArtifactMismatch)
	}
	if b.Header.WindowLength <= 0 {
		return fmt.Errorf("%w: window length %d", ErrArtifactMismatch, b.Header.WindowLength)
	}
	if b.Model.Hidden != b.Header.HiddenSize {
		return fmt.Errorf("%w: model hidden size %d, header %d", ErrArtifactMismatch, b.Model.Hidden, b.Header.HiddenSize)
	}
	if err := b.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactMismatch, err)
	}
	if b.Scaler.Columns() != n {
		return fmt.Errorf("%w: scaler has %d columns for %d stations", ErrArtifactMismatch, b.Scaler.Columns(), n)
	}
	if err := b.Graph.Validate(n); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactMismatch, err)
	}
	return nil
}

// Check compares the bundle with the caller's expectation.
func (b Bundle) Check(e Expectation) error {
	if !slices.Equal(b.Header.Stations, e.Stations) {
		return fmt.Errorf("%w: station order differs from configuration", ErrArtifactMismatch)
	}
	if e.WindowLength > 0 && e.WindowLength != b.Header.WindowLength {
		return fmt.Errorf("%w: window length %d, configured %d", ErrArtifactMismatch, b.Header.WindowLength, e.WindowLength)
	}
	return nil
}

// Step returns the resampling step the bundle was trained on.
func (h Header) Step() time.Duration { return time.Duration(h.StepSeconds) * time.Second }

func (h Header) sameRun(o Header) bool {
	return h.Format == o.Format &&
		h.RunID == o.RunID &&
		h.WindowLength == o.WindowLength &&
		h.HiddenSize == o.HiddenSize &&
		h.StepSeconds == o.StepSeconds &&
		slices.Equal(h.Stations, o.Stations)
}
