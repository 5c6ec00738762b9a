package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Params holds every trainable weight in row-major flat slices so the model
// can be persisted as JSON. LSTM gates are stacked in input, forget, cell,
// output order.
type Params struct {
	Hidden     int       `json:"hidden"`
	LSTMInput  []float64 `json:"lstm_w_ih"`  // [4H x 1]
	LSTMHidden []float64 `json:"lstm_w_hh"`  // [4H x H]
	LSTMBias   []float64 `json:"lstm_bias"`  // [4H]
	GCNWeight  []float64 `json:"gcn_weight"` // [H x H]
	GCNBias    []float64 `json:"gcn_bias"`   // [H]
	OutWeight  []float64 `json:"out_weight"` // [H]
	OutBias    []float64 `json:"out_bias"`   // [1]
}

func zeroParams(h int) Params {
	return Params{
		Hidden:     h,
		LSTMInput:  make([]float64, 4*h),
		LSTMHidden: make([]float64, 4*h*h),
		LSTMBias:   make([]float64, 4*h),
		GCNWeight:  make([]float64, h*h),
		GCNBias:    make([]float64, h),
		OutWeight:  make([]float64, h),
		OutBias:    make([]float64, 1),
	}
}

// initParams draws weights the same way the usual deep learning defaults do:
// uniform(±1/sqrt(H)) for the LSTM and the projection, Glorot for the graph
// convolution.
func initParams(h int, seed uint64) Params {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	p := zeroParams(h)
	k := 1 / math.Sqrt(float64(h))
	fill(rng, p.LSTMInput, k)
	fill(rng, p.LSTMHidden, k)
	fill(rng, p.LSTMBias, k)
	fill(rng, p.GCNWeight, math.Sqrt(6/float64(2*h)))
	fill(rng, p.OutWeight, k)
	fill(rng, p.OutBias, k)
	return p
}

func fill(rng *rand.Rand, dst []float64, bound float64) {
	for i := range dst {
		dst[i] = (2*rng.Float64() - 1) * bound
	}
}

// tensors exposes the flat slices backing p in a fixed order.
func (p *Params) tensors() [][]float64 {
	return [][]float64{p.LSTMInput, p.LSTMHidden, p.LSTMBias, p.GCNWeight, p.GCNBias, p.OutWeight, p.OutBias}
}

// Validate checks that every slice matches the hidden size.
func (p Params) Validate() error {
	h := p.Hidden
	if h <= 0 {
		return fmt.Errorf("hidden size must be positive, got %d", h)
	}
	want := zeroParams(h)
	got := p.tensors()
	for i, w := range want.tensors() {
		if len(got[i]) != len(w) {
			return fmt.Errorf("parameter %d has %d values, want %d", i, len(got[i]), len(w))
		}
	}
	return nil
}

func (p Params) clone() Params {
	c := zeroParams(p.Hidden)
	dst := c.tensors()
	for i, src := range p.tensors() {
		copy(dst[i], src)
	}
	return c
}
