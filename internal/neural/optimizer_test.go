package neural

import (
	"math"
	"testing"
)

// Minimizing (w-3)^2 from w=0 should converge close to 3.
func TestAdam_ConvergesOnQuadratic(t *testing.T) {
	params := [][]float64{{0}}
	grads := [][]float64{{0}}
	opt := newAdam(0.1, params)

	for i := 0; i < 500; i++ {
		grads[0][0] = 2 * (params[0][0] - 3)
		opt.step(params, grads)
	}

	if math.Abs(params[0][0]-3) > 0.05 {
		t.Errorf("w = %f, want ~3", params[0][0])
	}
}

func TestAdam_FirstStepIsLearningRateSized(t *testing.T) {
	params := [][]float64{{1}}
	grads := [][]float64{{10}}
	opt := newAdam(0.01, params)

	opt.step(params, grads)

	// Bias correction makes the first update ~lr regardless of gradient scale.
	if math.Abs((1-params[0][0])-0.01) > 1e-6 {
		t.Errorf("first step = %f, want ~0.01", 1-params[0][0])
	}
}
