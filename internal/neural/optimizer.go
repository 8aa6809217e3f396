package neural

import "math"

// adam is per-parameter moment-based gradient descent. State tensors mirror
// the predictor's paramSlices ordering.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
	m     [][]float64
	v     [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	a := &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([][]float64, len(params)),
		v:     make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p))
		a.v[i] = make([]float64, len(p))
	}
	return a
}

func (a *adam) step(params, grads [][]float64) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for i := range params {
		for j := range params[i] {
			g := grads[i][j]
			a.m[i][j] = a.beta1*a.m[i][j] + (1-a.beta1)*g
			a.v[i][j] = a.beta2*a.v[i][j] + (1-a.beta2)*g*g
			mHat := a.m[i][j] / bc1
			vHat := a.v[i][j] / bc2
			params[i][j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
