package neural

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

// MaxParameters bounds the trainable parameter count so inference stays cheap
// enough to run synchronously inside a request path.
const MaxParameters = 50000

// Config is the structural configuration persisted with every model artifact.
type Config struct {
	ConceptDim int `json:"concept_dim"`
	ContextDim int `json:"context_dim"`
	HeadCount  int `json:"head_count"`
	HiddenDim  int `json:"hidden_dim"`
}

func DefaultConfig() Config {
	return Config{
		ConceptDim: ConceptDim,
		ContextDim: ContextDim,
		HeadCount:  4,
		HiddenDim:  64,
	}
}

func (c Config) inputDim() int { return 2*c.ConceptDim + c.ContextDim }

func (c Config) headDim() int { return c.inputDim() / c.HeadCount }

func (c Config) Validate() error {
	if c.ConceptDim <= 0 || c.ContextDim <= 0 {
		return fmt.Errorf("invalid embedding dims %d/%d", c.ConceptDim, c.ContextDim)
	}
	if c.HeadCount <= 0 || c.inputDim()%c.HeadCount != 0 {
		return fmt.Errorf("head count %d does not divide input dim %d", c.HeadCount, c.inputDim())
	}
	if c.HiddenDim < 2 || c.HiddenDim%2 != 0 {
		return fmt.Errorf("hidden dim %d must be even and >= 2", c.HiddenDim)
	}
	return nil
}

// Predictor maps (concept_a, concept_b, context) embeddings to a link strength
// in [0,1]. The concatenated input is viewed as head_count equal slices; a
// self-attention block with shared Q/K/V projections lets the model learn
// interactions between the slices, then a two-layer feed-forward reducer with
// a sigmoid squash produces the strength. Inference is deterministic and
// side-effect-free; dropout applies during training only.
type Predictor struct {
	Config Config `json:"config"`

	// Attention block: shared projections applied to each input slice, plus a
	// full output projection with a residual connection.
	Wq [][]float64 `json:"wq"`
	Wk [][]float64 `json:"wk"`
	Wv [][]float64 `json:"wv"`
	Bq []float64   `json:"bq"`
	Bk []float64   `json:"bk"`
	Bv []float64   `json:"bv"`
	Wo [][]float64 `json:"wo"`
	Bo []float64   `json:"bo"`

	// Feed-forward reducer: input -> hidden -> hidden/2 -> 1.
	W1 [][]float64 `json:"w1"`
	B1 []float64   `json:"b1"`
	W2 [][]float64 `json:"w2"`
	B2 []float64   `json:"b2"`
	W3 []float64   `json:"w3"`
	B3 []float64   `json:"b3"`

	// Vocab is the encoder vocabulary the model was trained with. It travels
	// with the artifact so inference encoding matches training encoding.
	Vocab *Vocabulary `json:"vocab,omitempty"`

	training bool
	dropRate float64
	rng      *rand.Rand
}

// NewPredictor initializes a model with scaled uniform weights from the given
// seed. The same seed produces the same initial weights.
func NewPredictor(cfg Config, seed int64) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	in := cfg.inputDim()
	d := cfg.headDim()
	h2 := cfg.HiddenDim / 2

	p := &Predictor{
		Config: cfg,
		Wq:     initMatrix(rng, d, d),
		Wk:     initMatrix(rng, d, d),
		Wv:     initMatrix(rng, d, d),
		Bq:     make([]float64, d),
		Bk:     make([]float64, d),
		Bv:     make([]float64, d),
		Wo:     initMatrix(rng, in, in),
		Bo:     make([]float64, in),
		W1:     initMatrix(rng, cfg.HiddenDim, in),
		B1:     make([]float64, cfg.HiddenDim),
		W2:     initMatrix(rng, h2, cfg.HiddenDim),
		B2:     make([]float64, h2),
		W3:     initVector(rng, h2),
		B3:     []float64{0},
	}
	return p, nil
}

func initMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	scale := 1.0 / math.Sqrt(float64(cols))
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return m
}

func initVector(rng *rand.Rand, n int) []float64 {
	scale := 1.0 / math.Sqrt(float64(n))
	v := make([]float64, n)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * scale
	}
	return v
}

// CountParameters returns the total trainable parameter count.
func (p *Predictor) CountParameters() int {
	count := 0
	for _, s := range p.paramSlices() {
		count += len(s)
	}
	return count
}

// paramSlices exposes every parameter tensor as flat rows, in a fixed order
// shared with gradients and optimizer state.
func (p *Predictor) paramSlices() [][]float64 {
	slices := make([][]float64, 0, 64)
	for _, m := range [][][]float64{p.Wq, p.Wk, p.Wv, p.Wo, p.W1, p.W2} {
		slices = append(slices, m...)
	}
	return append(slices, p.Bq, p.Bk, p.Bv, p.Bo, p.B1, p.B2, p.W3, p.B3)
}

// setTraining toggles dropout. rng is used only for dropout masks.
func (p *Predictor) setTraining(on bool, dropRate float64, rng *rand.Rand) {
	p.training = on
	p.dropRate = dropRate
	p.rng = rng
}

// PredictStrength runs deterministic inference over pre-encoded embeddings.
func (p *Predictor) PredictStrength(conceptA, conceptB, contextVec []float64) (float64, error) {
	if len(conceptA) != p.Config.ConceptDim || len(conceptB) != p.Config.ConceptDim {
		return 0, &PredictionError{Err: fmt.Errorf("concept embedding dims %d/%d, want %d",
			len(conceptA), len(conceptB), p.Config.ConceptDim)}
	}
	if len(contextVec) != p.Config.ContextDim {
		return 0, &PredictionError{Err: fmt.Errorf("context embedding dim %d, want %d",
			len(contextVec), p.Config.ContextDim)}
	}

	x := make([]float64, 0, p.Config.inputDim())
	x = append(x, conceptA...)
	x = append(x, conceptB...)
	x = append(x, contextVec...)

	cache := p.forward(x)
	return cache.out, nil
}

// PredictLink encodes both descriptions with the artifact vocabulary and
// predicts the link strength. neuralPrior tags the context vector with the
// existing row's link type.
func (p *Predictor) PredictLink(descA, descB string, neuralPrior bool) (float64, error) {
	if p.Vocab == nil {
		return 0, &PredictionError{Err: fmt.Errorf("model has no vocabulary")}
	}
	return p.PredictStrength(
		p.Vocab.EncodeConcept(descA),
		p.Vocab.EncodeConcept(descB),
		p.Vocab.EncodeContext(descA, descB, neuralPrior),
	)
}

// EncodeConcept exposes the artifact vocabulary's concept encoder in the
// float32 format cached embeddings are stored in.
func (p *Predictor) EncodeConcept(text string) []float32 {
	out := make([]float32, ConceptDim)
	if p.Vocab == nil {
		return out
	}
	for i, f := range p.Vocab.EncodeConcept(text) {
		out[i] = float32(f)
	}
	return out
}

type forwardCache struct {
	x       []float64
	tokens  [][]float64
	q, k, v [][]float64
	attn    [][]float64
	y       []float64
	z       []float64
	h1pre   []float64
	h1      []float64
	h2pre   []float64
	h2      []float64
	mask1   []float64
	mask2   []float64
	out     float64
}

func (p *Predictor) forward(x []float64) *forwardCache {
	cfg := p.Config
	heads := cfg.HeadCount
	d := cfg.headDim()
	scale := 1.0 / math.Sqrt(float64(d))

	c := &forwardCache{x: x}

	c.tokens = make([][]float64, heads)
	c.q = make([][]float64, heads)
	c.k = make([][]float64, heads)
	c.v = make([][]float64, heads)
	for i := 0; i < heads; i++ {
		t := x[i*d : (i+1)*d]
		c.tokens[i] = t
		c.q[i] = addVec(matVec(p.Wq, t), p.Bq)
		c.k[i] = addVec(matVec(p.Wk, t), p.Bk)
		c.v[i] = addVec(matVec(p.Wv, t), p.Bv)
	}

	c.attn = make([][]float64, heads)
	c.y = make([]float64, cfg.inputDim())
	for i := 0; i < heads; i++ {
		scores := make([]float64, heads)
		for j := 0; j < heads; j++ {
			scores[j] = dot(c.q[i], c.k[j]) * scale
		}
		c.attn[i] = softmax(scores)
		for j := 0; j < heads; j++ {
			for n := 0; n < d; n++ {
				c.y[i*d+n] += c.attn[i][j] * c.v[j][n]
			}
		}
	}

	u := addVec(matVec(p.Wo, c.y), p.Bo)
	c.z = make([]float64, len(x))
	for i := range x {
		c.z[i] = x[i] + u[i]
	}

	c.h1pre = addVec(matVec(p.W1, c.z), p.B1)
	c.h1 = relu(c.h1pre)
	c.h1, c.mask1 = p.dropout(c.h1)

	c.h2pre = addVec(matVec(p.W2, c.h1), p.B2)
	c.h2 = relu(c.h2pre)
	c.h2, c.mask2 = p.dropout(c.h2)

	pre := dot(p.W3, c.h2) + p.B3[0]
	c.out = sigmoid(pre)
	return c
}

// dropout applies inverted dropout during training; identity at inference.
func (p *Predictor) dropout(v []float64) ([]float64, []float64) {
	if !p.training || p.dropRate <= 0 {
		return v, nil
	}
	keep := 1 - p.dropRate
	mask := make([]float64, len(v))
	out := make([]float64, len(v))
	for i := range v {
		if p.rng.Float64() < keep {
			mask[i] = 1 / keep
			out[i] = v[i] * mask[i]
		}
	}
	return out, mask
}

// Save writes the parameters, structural config, and vocabulary as a single
// self-contained JSON artifact.
func (p *Predictor) Save(path string) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// Load reconstructs a predictor from an artifact written by Save. Any failure
// (missing file, corrupt JSON, incompatible shapes) is a ModelLoadError.
func Load(path string) (*Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}

	p := &Predictor{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	if err := p.Config.Validate(); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	if err := p.checkShapes(); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	return p, nil
}

func (p *Predictor) checkShapes() error {
	cfg := p.Config
	in := cfg.inputDim()
	d := cfg.headDim()
	h2 := cfg.HiddenDim / 2

	checks := []struct {
		name       string
		m          [][]float64
		rows, cols int
	}{
		{"wq", p.Wq, d, d}, {"wk", p.Wk, d, d}, {"wv", p.Wv, d, d},
		{"wo", p.Wo, in, in},
		{"w1", p.W1, cfg.HiddenDim, in}, {"w2", p.W2, h2, cfg.HiddenDim},
	}
	for _, c := range checks {
		if len(c.m) != c.rows {
			return fmt.Errorf("%s has %d rows, want %d", c.name, len(c.m), c.rows)
		}
		for _, row := range c.m {
			if len(row) != c.cols {
				return fmt.Errorf("%s has %d cols, want %d", c.name, len(row), c.cols)
			}
		}
	}
	if len(p.Bq) != d || len(p.Bk) != d || len(p.Bv) != d || len(p.Bo) != in ||
		len(p.B1) != cfg.HiddenDim || len(p.B2) != h2 || len(p.W3) != h2 || len(p.B3) != 1 {
		return fmt.Errorf("bias/output shapes do not match config")
	}
	return nil
}

// snapshot deep-copies all parameters for best-model tracking.
func (p *Predictor) snapshot() [][]float64 {
	src := p.paramSlices()
	out := make([][]float64, len(src))
	for i, s := range src {
		out[i] = append([]float64(nil), s...)
	}
	return out
}

// restore copies a snapshot back into the parameters.
func (p *Predictor) restore(snap [][]float64) {
	dst := p.paramSlices()
	for i := range dst {
		copy(dst[i], snap[i])
	}
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = dot(row, v)
	}
	return out
}

func addVec(a, b []float64) []float64 {
	for i := range a {
		a[i] += b[i]
	}
	return a
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func relu(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if x > 0 {
			out[i] = x
		}
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(v []float64) []float64 {
	max := v[0]
	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}
	out := make([]float64, len(v))
	sum := 0.0
	for i, x := range v {
		out[i] = math.Exp(x - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
