package series

import (
	"errors"
	"fmt"
)

// Snapshot is one spatiotemporal example: X holds L past values per station
// in station-major order, Y the next value per station.
type Snapshot struct {
	X [][]float64 // [N][L]
	Y []float64   // [N]
}

// Window slices a T×N table into T-L snapshots. Sample s covers rows
// s..s+L-1 and targets row s+L.
func Window(values [][]float64, l int) ([]Snapshot, error) {
	if l <= 0 {
		return nil, errors.New("window length must be positive")
	}
	t := len(values)
	if t <= l {
		return nil, fmt.Errorf("%w: %d timesteps for window %d", ErrDataInsufficient, t, l)
	}
	n := len(values[0])
	out := make([]Snapshot, 0, t-l)
	for s := 0; s < t-l; s++ {
		out = append(out, Snapshot{X: stationMajor(values[s:s+l], n), Y: copyRow(values[s+l])})
	}
	return out, nil
}

// Latest builds an inference input from per-station histories that are
// already ordered oldest to newest and have exactly l values each.
func Latest(histories [][]float64, l int) ([][]float64, error) {
	x := make([][]float64, len(histories))
	for n, h := range histories {
		if len(h) != l {
			return nil, fmt.Errorf("station %d has %d values, want %d", n, len(h), l)
		}
		x[n] = copyRow(h)
	}
	return x, nil
}

func stationMajor(rows [][]float64, n int) [][]float64 {
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, len(rows))
		for k, row := range rows {
			x[i][k] = row[i]
		}
	}
	return x
}

func copyRow(r []float64) []float64 {
	out := make([]float64, len(r))
	copy(out, r)
	return out
}
