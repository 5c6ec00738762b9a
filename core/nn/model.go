package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is the LSTM + GCN forecaster. It is not safe for concurrent use
// while training.
type Model struct {
	p Params
}

// New creates a model with seeded random weights.
func New(hidden int, seed uint64) (*Model, error) {
	if hidden <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", hidden)
	}
	return &Model{p: initParams(hidden, seed)}, nil
}

// FromParams restores a model from persisted parameters.
func FromParams(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Model{p: p.clone()}, nil
}

// Params returns a copy of the current weights.
func (m *Model) Params() Params { return m.p.clone() }

// Hidden returns the hidden size.
func (m *Model) Hidden() int { return m.p.Hidden }

// Predict runs one snapshot x ([N][L], scaled) through the network using the
// propagation matrix prop ([N x N]) and returns one scaled value per station.
func (m *Model) Predict(x [][]float64, prop mat.Matrix) ([]float64, error) {
	c, err := m.forward(x, prop)
	if err != nil {
		return nil, err
	}
	return c.out, nil
}

// TrainStep performs one optimiser step on a single snapshot and returns the
// mean squared error measured before the update.
func (m *Model) TrainStep(x [][]float64, y []float64, prop mat.Matrix, opt *Adam) (float64, error) {
	c, err := m.forward(x, prop)
	if err != nil {
		return 0, err
	}
	if len(y) != len(x) {
		return 0, fmt.Errorf("target has %d values for %d stations", len(y), len(x))
	}
	grads, loss := m.backward(c, y, prop)
	opt.Step(&m.p, grads)
	return loss, nil
}

// Loss returns the mean squared error of the snapshot without updating.
func (m *Model) Loss(x [][]float64, y []float64, prop mat.Matrix) (float64, error) {
	out, err := m.Predict(x, prop)
	if err != nil {
		return 0, err
	}
	if len(y) != len(out) {
		return 0, fmt.Errorf("target has %d values for %d stations", len(y), len(out))
	}
	var loss float64
	for i := range out {
		d := out[i] - y[i]
		loss += d * d
	}
	return loss / float64(len(out)), nil
}

type cache struct {
	xs               []*mat.Dense // L x [N x 1]
	hs, cs           []*mat.Dense // L+1 x [N x H], index 0 is the zero state
	gi, gf, gg, gout []*mat.Dense // L x [N x H]
	agg              *mat.Dense   // prop * h_last
	zpre, z          *mat.Dense
	out              []float64
}

func (m *Model) forward(x [][]float64, prop mat.Matrix) (*cache, error) {
	n := len(x)
	if n == 0 {
		return nil, errors.New("empty snapshot")
	}
	l := len(x[0])
	if l == 0 {
		return nil, errors.New("empty window")
	}
	for i, row := range x {
		if len(row) != l {
			return nil, fmt.Errorf("station %d has window %d, want %d", i, len(row), l)
		}
	}
	if r, cols := prop.Dims(); r != n || cols != n {
		return nil, fmt.Errorf("propagation matrix is %dx%d for %d stations", r, cols, n)
	}

	h := m.p.Hidden
	wih := mat.NewDense(4*h, 1, m.p.LSTMInput)
	whh := mat.NewDense(4*h, h, m.p.LSTMHidden)
	b := m.p.LSTMBias

	c := &cache{
		hs: []*mat.Dense{mat.NewDense(n, h, nil)},
		cs: []*mat.Dense{mat.NewDense(n, h, nil)},
	}
	for k := 0; k < l; k++ {
		xt := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			xt.Set(i, 0, x[i][k])
		}
		var pre, rec mat.Dense
		pre.Mul(xt, wih.T())
		rec.Mul(c.hs[k], whh.T())
		pre.Add(&pre, &rec)

		gi, gf := mat.NewDense(n, h, nil), mat.NewDense(n, h, nil)
		gg, gov := mat.NewDense(n, h, nil), mat.NewDense(n, h, nil)
		hn, cn := mat.NewDense(n, h, nil), mat.NewDense(n, h, nil)
		cp := c.cs[k]
		for i := 0; i < n; i++ {
			for j := 0; j < h; j++ {
				iv := sigmoid(pre.At(i, j) + b[j])
				fv := sigmoid(pre.At(i, h+j) + b[h+j])
				gv := math.Tanh(pre.At(i, 2*h+j) + b[2*h+j])
				ov := sigmoid(pre.At(i, 3*h+j) + b[3*h+j])
				cv := fv*cp.At(i, j) + iv*gv
				gi.Set(i, j, iv)
				gf.Set(i, j, fv)
				gg.Set(i, j, gv)
				gov.Set(i, j, ov)
				cn.Set(i, j, cv)
				hn.Set(i, j, ov*math.Tanh(cv))
			}
		}
		c.xs = append(c.xs, xt)
		c.gi = append(c.gi, gi)
		c.gf = append(c.gf, gf)
		c.gg = append(c.gg, gg)
		c.gout = append(c.gout, gov)
		c.hs = append(c.hs, hn)
		c.cs = append(c.cs, cn)
	}

	c.agg = new(mat.Dense)
	c.agg.Mul(prop, c.hs[l])
	c.zpre = new(mat.Dense)
	c.zpre.Mul(c.agg, mat.NewDense(h, h, m.p.GCNWeight))
	c.z = mat.NewDense(n, h, nil)
	c.out = make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < h; j++ {
			v := c.zpre.At(i, j) + m.p.GCNBias[j]
			c.zpre.Set(i, j, v)
			if v > 0 {
				c.z.Set(i, j, v)
			}
		}
		c.out[i] = floats.Dot(c.z.RawRowView(i), m.p.OutWeight) + m.p.OutBias[0]
	}
	return c, nil
}

// backward returns the gradient of the mean squared error with respect to
// every parameter, along with the loss itself.
func (m *Model) backward(c *cache, y []float64, prop mat.Matrix) (Params, float64) {
	n, h := len(c.out), m.p.Hidden
	l := len(c.xs)
	g := zeroParams(h)

	dy := make([]float64, n)
	var loss float64
	for i := range c.out {
		d := c.out[i] - y[i]
		loss += d * d
		dy[i] = 2 * d / float64(n)
	}
	loss /= float64(n)

	// projection and ReLU
	dzpre := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		g.OutBias[0] += dy[i]
		for j := 0; j < h; j++ {
			g.OutWeight[j] += c.z.At(i, j) * dy[i]
			if c.zpre.At(i, j) > 0 {
				dzpre.Set(i, j, dy[i]*m.p.OutWeight[j])
			}
		}
	}

	// graph convolution
	wg := mat.NewDense(h, h, m.p.GCNWeight)
	mat.NewDense(h, h, g.GCNWeight).Mul(c.agg.T(), dzpre)
	for j := 0; j < h; j++ {
		g.GCNBias[j] = floats.Sum(mat.Col(nil, j, dzpre))
	}
	var dagg mat.Dense
	dagg.Mul(dzpre, wg.T())
	dh := new(mat.Dense)
	dh.Mul(prop.T(), &dagg)

	// LSTM, back through time
	whh := mat.NewDense(4*h, h, m.p.LSTMHidden)
	dwih := mat.NewDense(4*h, 1, g.LSTMInput)
	dwhh := mat.NewDense(4*h, h, g.LSTMHidden)
	dc := mat.NewDense(n, h, nil)
	for k := l - 1; k >= 0; k-- {
		dpre := mat.NewDense(n, 4*h, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < h; j++ {
				iv, fv := c.gi[k].At(i, j), c.gf[k].At(i, j)
				gv, ov := c.gg[k].At(i, j), c.gout[k].At(i, j)
				tc := math.Tanh(c.cs[k+1].At(i, j))
				dhv := dh.At(i, j)
				dov := dhv * tc
				dcv := dc.At(i, j) + dhv*ov*(1-tc*tc)
				dc.Set(i, j, dcv*fv)
				dpre.Set(i, j, dcv*gv*iv*(1-iv))
				dpre.Set(i, h+j, dcv*c.cs[k].At(i, j)*fv*(1-fv))
				dpre.Set(i, 2*h+j, dcv*iv*(1-gv*gv))
				dpre.Set(i, 3*h+j, dov*ov*(1-ov))
			}
		}
		var gin, ghh mat.Dense
		gin.Mul(dpre.T(), c.xs[k])
		dwih.Add(dwih, &gin)
		ghh.Mul(dpre.T(), c.hs[k])
		dwhh.Add(dwhh, &ghh)
		for j := 0; j < 4*h; j++ {
			g.LSTMBias[j] += floats.Sum(mat.Col(nil, j, dpre))
		}
		next := new(mat.Dense)
		next.Mul(dpre, whh)
		dh = next
	}
	return g, loss
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }
