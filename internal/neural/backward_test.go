package neural

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBackward_MatchesNumericalGradient verifies the analytic gradients against
// central finite differences on a small configuration, covering the sigmoid
// head, both reducer layers, the residual projection, and the shared attention
// projections.
func TestBackward_MatchesNumericalGradient(t *testing.T) {
	cfg := Config{ConceptDim: 4, ContextDim: 4, HeadCount: 2, HiddenDim: 4}
	p, err := NewPredictor(cfg, 11)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(23))
	x := make([]float64, cfg.inputDim())
	for i := range x {
		x[i] = rng.Float64()*2 - 1
	}
	target := 0.7

	loss := func() float64 {
		diff := p.forward(x).out - target
		return diff * diff
	}

	grads := newGradients(cfg)
	cache := p.forward(x)
	p.backward(cache, 2*(cache.out-target), grads)

	const eps = 1e-5
	params := p.paramSlices()
	analytic := grads.slices()
	require.Equal(t, len(params), len(analytic))

	for si, s := range params {
		for j := range s {
			orig := s[j]
			s[j] = orig + eps
			plus := loss()
			s[j] = orig - eps
			minus := loss()
			s[j] = orig

			numeric := (plus - minus) / (2 * eps)
			got := analytic[si][j]
			tol := 1e-6 + 1e-4*math.Abs(numeric)
			if math.Abs(got-numeric) > tol {
				t.Fatalf("slice %d index %d: analytic %g, numeric %g", si, j, got, numeric)
			}
		}
	}
}

func TestGradients_ZeroAndScale(t *testing.T) {
	cfg := Config{ConceptDim: 4, ContextDim: 4, HeadCount: 2, HiddenDim: 4}
	g := newGradients(cfg)

	for _, s := range g.slices() {
		for i := range s {
			s[i] = 2
		}
	}
	g.scale(0.5)
	for _, s := range g.slices() {
		for i := range s {
			require.Equal(t, 1.0, s[i])
		}
	}

	g.zero()
	for _, s := range g.slices() {
		for i := range s {
			require.Equal(t, 0.0, s[i])
		}
	}
}
