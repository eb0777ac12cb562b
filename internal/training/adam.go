package training

import "math"

// Adam updates parameter slices in place.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	params [][]float64
	m, v   [][]float64
	step   int
}

// NewAdam uses the usual defaults: beta1 0.9, beta2 0.999, epsilon 1e-7.
func NewAdam(params [][]float64, lr float64) *Adam {
	a := &Adam{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7, params: params}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

// Step applies one update. grads must match the parameters in order and size.
func (a *Adam) Step(grads [][]float64) {
	a.step++
	t := float64(a.step)
	alpha := a.LearningRate * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))

	for i, p := range a.params {
		g, m, v := grads[i], a.m[i], a.v[i]
		for j := range p {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			p[j] -= alpha * m[j] / (math.Sqrt(v[j]) + a.Epsilon)
		}
	}
}
