package series

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// MinMaxScaler maps every column to [0,1] using the bounds seen at fit time.
// It is fit once during training and reused verbatim for inference.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// FitMinMax computes per-column bounds of a T×N table.
func FitMinMax(values [][]float64) (MinMaxScaler, error) {
	if len(values) == 0 {
		return MinMaxScaler{}, fmt.Errorf("%w: empty table", ErrDataInsufficient)
	}
	n := len(values[0])
	s := MinMaxScaler{Min: make([]float64, n), Max: make([]float64, n)}
	col := make([]float64, len(values))
	for c := 0; c < n; c++ {
		for t, row := range values {
			col[t] = row[c]
		}
		s.Min[c] = floats.Min(col)
		s.Max[c] = floats.Max(col)
	}
	return s, nil
}

// Columns returns the number of fitted columns.
func (s MinMaxScaler) Columns() int { return len(s.Min) }

// TransformValue scales v with the bounds of column c. Constant columns map
// to zero.
func (s MinMaxScaler) TransformValue(c int, v float64) float64 {
	span := s.Max[c] - s.Min[c]
	if span == 0 {
		return 0
	}
	return (v - s.Min[c]) / span
}

// InverseValue maps a scaled value of column c back to physical units.
func (s MinMaxScaler) InverseValue(c int, v float64) float64 {
	return v*(s.Max[c]-s.Min[c]) + s.Min[c]
}

// Transform scales a T×N table into a new table.
func (s MinMaxScaler) Transform(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for t, row := range values {
		out[t] = make([]float64, len(row))
		for c, v := range row {
			out[t][c] = s.TransformValue(c, v)
		}
	}
	return out
}
