package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/aqforecast/core/model"
)

// Aligned is a time-indexed table with one column per station. Times are
// strictly increasing and spaced by Step.
type Aligned struct {
	Step   time.Duration
	Times  []time.Time
	Values [][]float64 // [T][N]
}

// Len returns the number of timesteps.
func (a Aligned) Len() int { return len(a.Times) }

// Align resamples every station onto a step grid using the bucket mean,
// fills interior gaps by linear interpolation and keeps only the timestamps
// covered by all stations. A station with no observation at all aborts the
// alignment.
func Align(stations []model.Station, obs map[string][]model.Observation, step time.Duration) (Aligned, error) {
	if step <= 0 {
		return Aligned{}, errors.New("step must be positive")
	}
	if len(stations) == 0 {
		return Aligned{}, fmt.Errorf("%w: no stations", ErrDataInsufficient)
	}
	grids := make([]grid, len(stations))
	for i, s := range stations {
		g, ok := resample(obs[s.ID], step)
		if !ok {
			return Aligned{}, fmt.Errorf("%w: station %s has no observations", ErrDataInsufficient, s.ID)
		}
		grids[i] = g
	}

	start, end := grids[0].start, grids[0].end()
	for _, g := range grids[1:] {
		if g.start.After(start) {
			start = g.start
		}
		if g.end().Before(end) {
			end = g.end()
		}
	}
	if start.After(end) {
		return Aligned{}, fmt.Errorf("%w: station series do not overlap", ErrDataInsufficient)
	}

	out := Aligned{Step: step}
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		row := make([]float64, len(grids))
		complete := true
		for i, g := range grids {
			v := g.at(ts)
			if math.IsNaN(v) {
				complete = false
				break
			}
			row[i] = v
		}
		if !complete {
			continue
		}
		out.Times = append(out.Times, ts)
		out.Values = append(out.Values, row)
	}
	if len(out.Times) == 0 {
		return Aligned{}, fmt.Errorf("%w: no complete rows after alignment", ErrDataInsufficient)
	}
	return out, nil
}

type grid struct {
	start  time.Time
	step   time.Duration
	values []float64
}

func (g grid) end() time.Time {
	return g.start.Add(time.Duration(len(g.values)-1) * g.step)
}

func (g grid) at(t time.Time) float64 {
	if t.Before(g.start) {
		return math.NaN()
	}
	i := int(t.Sub(g.start) / g.step)
	if i >= len(g.values) {
		return math.NaN()
	}
	return g.values[i]
}

// resample buckets the observations by step and interpolates empty buckets
// between the first and last filled ones.
func resample(obs []model.Observation, step time.Duration) (grid, bool) {
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	for _, o := range obs {
		if math.IsNaN(o.PM25) || math.IsInf(o.PM25, 0) {
			continue
		}
		k := o.Time.UTC().Truncate(step).UnixNano()
		sums[k] += o.PM25
		counts[k]++
	}
	if len(counts) == 0 {
		return grid{}, false
	}
	keys := make([]int64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	start := time.Unix(0, keys[0]).UTC()
	n := int((keys[len(keys)-1]-keys[0])/int64(step)) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	for _, k := range keys {
		values[(k-keys[0])/int64(step)] = sums[k] / float64(counts[k])
	}
	interpolate(values)
	return grid{start: start, step: step, values: values}, true
}

// interpolate fills NaN runs bounded by known values on both sides.
func interpolate(v []float64) {
	prev := -1
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				frac := float64(j-prev) / span
				v[j] = v[prev] + frac*(x-v[prev])
			}
		}
		prev = i
	}
}
