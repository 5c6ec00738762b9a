package nn

import "math"

// Adam is the Adam optimiser with bias-corrected moment estimates.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	step int
	m, v [][]float64
}

// NewAdam returns an optimiser with the usual default moments.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Step applies one update of p in place using gradients g.
func (a *Adam) Step(p *Params, g Params) {
	ps, gs := p.tensors(), g.tensors()
	if a.m == nil {
		a.m = make([][]float64, len(ps))
		a.v = make([][]float64, len(ps))
		for i, t := range ps {
			a.m[i] = make([]float64, len(t))
			a.v[i] = make([]float64, len(t))
		}
	}
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i, t := range ps {
		m, v, grad := a.m[i], a.v[i], gs[i]
		for j := range t {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*grad[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*grad[j]*grad[j]
			t[j] -= a.LR * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.Eps)
		}
	}
}
