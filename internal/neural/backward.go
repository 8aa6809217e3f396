package neural

import "math"

// gradients mirrors the predictor's parameter tensors, in the same order as
// paramSlices so optimizer state lines up index-for-index.
type gradients struct {
	wq, wk, wv, wo, w1, w2 [][]float64
	bq, bk, bv, bo, b1, b2 []float64
	w3, b3                 []float64
}

func newGradients(cfg Config) *gradients {
	in := cfg.inputDim()
	d := cfg.headDim()
	h2 := cfg.HiddenDim / 2
	return &gradients{
		wq: zeroMatrix(d, d), wk: zeroMatrix(d, d), wv: zeroMatrix(d, d),
		wo: zeroMatrix(in, in),
		w1: zeroMatrix(cfg.HiddenDim, in), w2: zeroMatrix(h2, cfg.HiddenDim),
		bq: make([]float64, d), bk: make([]float64, d), bv: make([]float64, d),
		bo: make([]float64, in), b1: make([]float64, cfg.HiddenDim), b2: make([]float64, h2),
		w3: make([]float64, h2), b3: make([]float64, 1),
	}
}

func (g *gradients) slices() [][]float64 {
	slices := make([][]float64, 0, 64)
	for _, m := range [][][]float64{g.wq, g.wk, g.wv, g.wo, g.w1, g.w2} {
		slices = append(slices, m...)
	}
	return append(slices, g.bq, g.bk, g.bv, g.bo, g.b1, g.b2, g.w3, g.b3)
}

func (g *gradients) zero() {
	for _, s := range g.slices() {
		for i := range s {
			s[i] = 0
		}
	}
}

func (g *gradients) scale(f float64) {
	for _, s := range g.slices() {
		for i := range s {
			s[i] *= f
		}
	}
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// backward accumulates gradients for one example given dL/d(output).
func (p *Predictor) backward(c *forwardCache, dOut float64, g *gradients) {
	cfg := p.Config
	heads := cfg.HeadCount
	d := cfg.headDim()
	scale := 1.0 / math.Sqrt(float64(d))

	// Sigmoid output.
	dPre := dOut * c.out * (1 - c.out)
	dh2 := make([]float64, len(c.h2))
	for i := range c.h2 {
		g.w3[i] += dPre * c.h2[i]
		dh2[i] = dPre * p.W3[i]
	}
	g.b3[0] += dPre

	// Second reducer layer.
	if c.mask2 != nil {
		for i := range dh2 {
			dh2[i] *= c.mask2[i]
		}
	}
	for i := range dh2 {
		if c.h2pre[i] <= 0 {
			dh2[i] = 0
		}
	}
	dh1 := make([]float64, len(c.h1))
	for i := range p.W2 {
		for j := range p.W2[i] {
			g.w2[i][j] += dh2[i] * c.h1[j]
			dh1[j] += dh2[i] * p.W2[i][j]
		}
		g.b2[i] += dh2[i]
	}

	// First reducer layer.
	if c.mask1 != nil {
		for i := range dh1 {
			dh1[i] *= c.mask1[i]
		}
	}
	for i := range dh1 {
		if c.h1pre[i] <= 0 {
			dh1[i] = 0
		}
	}
	dz := make([]float64, len(c.z))
	for i := range p.W1 {
		for j := range p.W1[i] {
			g.w1[i][j] += dh1[i] * c.z[j]
			dz[j] += dh1[i] * p.W1[i][j]
		}
		g.b1[i] += dh1[i]
	}

	// Residual: z = x + Wo y + bo, so dz flows straight into the projection.
	dy := make([]float64, len(c.y))
	for i := range p.Wo {
		for j := range p.Wo[i] {
			g.wo[i][j] += dz[i] * c.y[j]
			dy[j] += dz[i] * p.Wo[i][j]
		}
		g.bo[i] += dz[i]
	}

	// Attention block.
	dq := zeroMatrix(heads, d)
	dk := zeroMatrix(heads, d)
	dv := zeroMatrix(heads, d)
	for i := 0; i < heads; i++ {
		do := dy[i*d : (i+1)*d]

		dalpha := make([]float64, heads)
		for j := 0; j < heads; j++ {
			dalpha[j] = dot(do, c.v[j])
			for n := 0; n < d; n++ {
				dv[j][n] += c.attn[i][j] * do[n]
			}
		}

		// Softmax jacobian for row i.
		sum := 0.0
		for j := 0; j < heads; j++ {
			sum += c.attn[i][j] * dalpha[j]
		}
		for j := 0; j < heads; j++ {
			ds := c.attn[i][j] * (dalpha[j] - sum) * scale
			for n := 0; n < d; n++ {
				dq[i][n] += ds * c.k[j][n]
				dk[j][n] += ds * c.q[i][n]
			}
		}
	}

	// Shared Q/K/V projections accumulate over every slice.
	for i := 0; i < heads; i++ {
		t := c.tokens[i]
		for r := 0; r < d; r++ {
			for col := 0; col < d; col++ {
				g.wq[r][col] += dq[i][r] * t[col]
				g.wk[r][col] += dk[i][r] * t[col]
				g.wv[r][col] += dv[i][r] * t[col]
			}
			g.bq[r] += dq[i][r]
			g.bk[r] += dk[i][r]
			g.bv[r] += dv[i][r]
		}
	}
}
