package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Epsilon clips probabilities before taking logs in the loss.
const Epsilon = 1e-7

// Head is the trainable classifier stacked on the pooled backbone features:
// Dense(hidden, gelu) followed by Dense(1, sigmoid).
type Head struct {
	W1 *mat.Dense    // features x hidden
	B1 *mat.VecDense // hidden
	W2 *mat.Dense    // hidden x 1
	B2 *mat.VecDense // 1
}

// NewHead initialises kernels with Glorot uniform and biases with zeros.
func NewHead(features, hidden int, rng *rand.Rand) *Head {
	return &Head{
		W1: glorot(features, hidden, rng),
		B1: mat.NewVecDense(hidden, nil),
		W2: glorot(hidden, 1, rng),
		B2: mat.NewVecDense(1, nil),
	}
}

func glorot(in, out int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(in, out, data)
}

func (h *Head) Features() int { r, _ := h.W1.Dims(); return r }
func (h *Head) Hidden() int   { _, c := h.W1.Dims(); return c }

func (h *Head) validate() error {
	_, hid := h.W1.Dims()
	r, c := h.W2.Dims()
	switch {
	case h.B1.Len() != hid:
		return fmt.Errorf("b1 has %d units, want %d", h.B1.Len(), hid)
	case r != hid || c != 1:
		return fmt.Errorf("w2 is %dx%d, want %dx1", r, c, hid)
	case h.B2.Len() != 1:
		return fmt.Errorf("b2 has %d units, want 1", h.B2.Len())
	}
	return nil
}

// activations holds the intermediate values of one forward pass.
type activations struct {
	pre  *mat.Dense // x*W1 + b1
	act  *mat.Dense // gelu(pre)
	prob []float64
}

func (h *Head) forward(x *mat.Dense) *activations {
	n, _ := x.Dims()
	hidden := h.Hidden()

	pre := mat.NewDense(n, hidden, nil)
	pre.Mul(x, h.W1)
	b1 := h.B1.RawVector().Data
	act := mat.NewDense(n, hidden, nil)
	for i := 0; i < n; i++ {
		prow, arow := pre.RawRowView(i), act.RawRowView(i)
		for j := range prow {
			prow[j] += b1[j]
			arow[j] = gelu(prow[j])
		}
	}

	z := mat.NewDense(n, 1, nil)
	z.Mul(act, h.W2)
	b2 := h.B2.AtVec(0)
	prob := make([]float64, n)
	for i := range prob {
		prob[i] = sigmoid(z.At(i, 0) + b2)
	}
	return &activations{pre: pre, act: act, prob: prob}
}

// Forward returns the malignant probability for each feature row. It only
// reads the weights and is safe for concurrent use.
func (h *Head) Forward(x *mat.Dense) []float64 {
	return h.forward(x).prob
}

// Gradients holds dLoss/dParam in the order of Head.Params.
type Gradients struct {
	W1 *mat.Dense
	B1 *mat.VecDense
	W2 *mat.Dense
	B2 *mat.VecDense
}

// Params exposes the raw parameter storage for optimizers.
func (h *Head) Params() [][]float64 {
	return [][]float64{h.W1.RawMatrix().Data, h.B1.RawVector().Data, h.W2.RawMatrix().Data, h.B2.RawVector().Data}
}

func (g *Gradients) Slices() [][]float64 {
	return [][]float64{g.W1.RawMatrix().Data, g.B1.RawVector().Data, g.W2.RawMatrix().Data, g.B2.RawVector().Data}
}

// Backward runs a forward pass on x and returns the predicted probabilities,
// the mean binary cross-entropy against y and its gradients.
func (h *Head) Backward(x *mat.Dense, y []float64) ([]float64, float64, *Gradients) {
	n, _ := x.Dims()
	a := h.forward(x)
	hidden := h.Hidden()

	// sigmoid + cross-entropy: dL/dz = (p - y) / n
	dz := mat.NewDense(n, 1, nil)
	var db2 float64
	for i, p := range a.prob {
		d := (p - y[i]) / float64(n)
		dz.Set(i, 0, d)
		db2 += d
	}

	g := &Gradients{
		W1: mat.NewDense(h.Features(), hidden, nil),
		B1: mat.NewVecDense(hidden, nil),
		W2: mat.NewDense(hidden, 1, nil),
		B2: mat.NewVecDense(1, []float64{db2}),
	}
	g.W2.Mul(a.act.T(), dz)

	dh := mat.NewDense(n, hidden, nil)
	dh.Mul(dz, h.W2.T())
	for i := 0; i < n; i++ {
		drow, prow := dh.RawRowView(i), a.pre.RawRowView(i)
		for j := range drow {
			drow[j] *= geluGrad(prow[j])
		}
	}

	g.W1.Mul(x.T(), dh)
	for j := 0; j < hidden; j++ {
		g.B1.SetVec(j, mat.Sum(dh.ColView(j)))
	}

	return a.prob, BinaryCrossEntropy(a.prob, y), g
}

// BinaryCrossEntropy is the mean loss over p, clipped to [Epsilon, 1-Epsilon].
func BinaryCrossEntropy(p, y []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	var sum float64
	for i, pi := range p {
		pi = math.Min(math.Max(pi, Epsilon), 1-Epsilon)
		sum -= y[i]*math.Log(pi) + (1-y[i])*math.Log(1-pi)
	}
	return sum / float64(len(p))
}

// Accuracy counts predictions on the same side of 0.5 as their label.
func Accuracy(p, y []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	var hits int
	for i, pi := range p {
		if (pi > 0.5) == (y[i] > 0.5) {
			hits++
		}
	}
	return float64(hits) / float64(len(p))
}

func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Erf(x/math.Sqrt2))
}

func geluGrad(x float64) float64 {
	cdf := 0.5 * (1 + math.Erf(x/math.Sqrt2))
	pdf := math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
	return cdf + x*pdf
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
