package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewHeadShapes(t *testing.T) {
	h := NewHead(8, 4, rand.New(rand.NewSource(1)))
	require.NoError(t, h.validate())
	assert.Equal(t, 8, h.Features())
	assert.Equal(t, 4, h.Hidden())

	limit := math.Sqrt(6.0 / 12)
	for _, v := range h.W1.RawMatrix().Data {
		assert.LessOrEqual(t, math.Abs(v), limit)
	}
	assert.Zero(t, mat.Sum(h.B1))
}

func TestForwardIsProbability(t *testing.T) {
	h := NewHead(5, 3, rand.New(rand.NewSource(2)))
	x := mat.NewDense(4, 5, []float64{
		0, 0, 0, 0, 0,
		1, 2, 3, 4, 5,
		-9, 9, -9, 9, -9,
		0.1, 0.2, 0.3, 0.4, 0.5,
	})
	p := h.Forward(x)
	require.Len(t, p, 4)
	for _, v := range p {
		assert.True(t, v > 0 && v < 1, "p=%v", v)
	}
	assert.Equal(t, p, h.Forward(x))
}

// Every analytic gradient entry is checked against central differences.
func TestBackwardMatchesNumericGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	h := NewHead(4, 3, rng)
	for _, p := range h.Params() {
		for i := range p {
			p[i] += rng.NormFloat64() * 0.1
		}
	}
	x := mat.NewDense(3, 4, []float64{0.5, -1, 2, 0.1, 1.5, 0.3, -0.7, 1, -0.2, 0.8, 0.4, -1.1})
	y := []float64{1, 0, 1}

	_, _, grads := h.Backward(x, y)
	const step = 1e-6
	for pi, param := range h.Params() {
		g := grads.Slices()[pi]
		for i := range param {
			orig := param[i]
			param[i] = orig + step
			up := BinaryCrossEntropy(h.Forward(x), y)
			param[i] = orig - step
			down := BinaryCrossEntropy(h.Forward(x), y)
			param[i] = orig
			assert.InDelta(t, (up-down)/(2*step), g[i], 1e-5, "param %d index %d", pi, i)
		}
	}
}

func TestLossAndAccuracy(t *testing.T) {
	assert.InDelta(t, -math.Log(0.9), BinaryCrossEntropy([]float64{0.9}, []float64{1}), 1e-12)
	assert.InDelta(t, -math.Log(Epsilon), BinaryCrossEntropy([]float64{0}, []float64{1}), 1e-9)
	assert.Zero(t, BinaryCrossEntropy(nil, nil))

	assert.Equal(t, 0.5, Accuracy([]float64{0.9, 0.2, 0.7, 0.4}, []float64{1, 1, 0, 0}))
}

func TestActivations(t *testing.T) {
	assert.Zero(t, gelu(0))
	assert.InDelta(t, 0.8413447460685429, gelu(1), 1e-12)
	assert.InDelta(t, 0.5, geluGrad(0), 1e-12)
	assert.Equal(t, 0.5, sigmoid(0))
	assert.InDelta(t, 1, sigmoid(800), 1e-12)
	assert.InDelta(t, 0, sigmoid(-800), 1e-12)
}
