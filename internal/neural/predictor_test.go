package neural

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomInput(rng *rand.Rand, cfg Config) (a, b, ctx []float64) {
	a = make([]float64, cfg.ConceptDim)
	b = make([]float64, cfg.ConceptDim)
	ctx = make([]float64, cfg.ContextDim)
	for i := range a {
		a[i] = rng.Float64()
	}
	for i := range b {
		b[i] = rng.Float64()
	}
	for i := range ctx {
		ctx[i] = rng.Float64()
	}
	return a, b, ctx
}

func TestPredictStrength_Bounded(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 1)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 200; i++ {
		a, b, ctx := randomInput(rng, p.Config)
		strength, err := p.PredictStrength(a, b, ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, strength, 0.0)
		assert.LessOrEqual(t, strength, 1.0)
	}
}

func TestPredictStrength_Deterministic(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 1)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	a, b, ctx := randomInput(rng, p.Config)

	s1, err := p.PredictStrength(a, b, ctx)
	require.NoError(t, err)
	s2, err := p.PredictStrength(a, b, ctx)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestPredictStrength_DimensionMismatch(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 1)
	require.NoError(t, err)

	_, err = p.PredictStrength(make([]float64, 3), make([]float64, ConceptDim), make([]float64, ContextDim))
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)

	_, err = p.PredictStrength(make([]float64, ConceptDim), make([]float64, ConceptDim), make([]float64, 7))
	require.ErrorAs(t, err, &predErr)
}

func TestCountParameters_WithinBudget(t *testing.T) {
	// Every configuration the tuning grid can produce must respect the budget.
	for _, heads := range []int{4, 8, 16} {
		for _, hidden := range []int{32, 64} {
			cfg := DefaultConfig()
			cfg.HeadCount = heads
			cfg.HiddenDim = hidden

			p, err := NewPredictor(cfg, 1)
			require.NoError(t, err)

			n := p.CountParameters()
			assert.LessOrEqualf(t, n, MaxParameters,
				"heads=%d hidden=%d: %d parameters", heads, hidden, n)
		}
	}
}

func TestCountParameters_TwoHeadsOverBudget(t *testing.T) {
	// 2 heads means 80x80 shared projections; the configuration is structurally
	// valid but must be caught by the trainer's budget check.
	cfg := DefaultConfig()
	cfg.HeadCount = 2

	p, err := NewPredictor(cfg, 1)
	require.NoError(t, err)
	assert.Greater(t, p.CountParameters(), MaxParameters)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.HeadCount = 7 // does not divide 160
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.HiddenDim = 5
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.ConceptDim = 0
	assert.Error(t, bad.Validate())
}

func TestSaveLoad_IdenticalOutputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	p, err := NewPredictor(DefaultConfig(), 3)
	require.NoError(t, err)
	p.Vocab = BuildVocabulary([]string{"persisted vocabulary travels with the artifact"})
	require.NoError(t, p.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Vocab)

	rng := rand.New(rand.NewSource(17))
	for i := 0; i < 100; i++ {
		a, b, ctx := randomInput(rng, p.Config)
		want, err := p.PredictStrength(a, b, ctx)
		require.NoError(t, err)
		got, err := loaded.PredictStrength(a, b, ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoad_CorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoad_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")

	p, err := NewPredictor(DefaultConfig(), 3)
	require.NoError(t, err)
	// Claim a different head count than the weights were shaped for.
	p.Config.HeadCount = 8
	require.NoError(t, p.Save(path))

	_, err = Load(path)
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestPredictLink_NoVocabulary(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 3)
	require.NoError(t, err)

	_, err = p.PredictLink("a", "b", false)
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
}

func TestPredictLink_UsesArtifactVocabulary(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 3)
	require.NoError(t, err)
	p.Vocab = BuildVocabulary([]string{"cache layer", "storage engine"})

	s1, err := p.PredictLink("cache layer", "storage engine", false)
	require.NoError(t, err)
	s2, err := p.PredictLink("cache layer", "storage engine", true)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, s1, 0.0)
	assert.LessOrEqual(t, s1, 1.0)
	// The link-type tag reaches the model, so the two priors may differ, but
	// both must stay bounded.
	assert.GreaterOrEqual(t, s2, 0.0)
	assert.LessOrEqual(t, s2, 1.0)
}

func TestEncodeConcept_Float32Cache(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 3)
	require.NoError(t, err)

	// No vocabulary: zero vector, never nil.
	out := p.EncodeConcept("anything")
	require.Len(t, out, ConceptDim)

	p.Vocab = BuildVocabulary([]string{"queue worker pool"})
	out = p.EncodeConcept("queue worker")
	nonzero := false
	for _, x := range out {
		if x != 0 {
			nonzero = true
		}
	}
	assert.True(t, nonzero)
}

func TestSnapshotRestore(t *testing.T) {
	p, err := NewPredictor(DefaultConfig(), 3)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(8))
	a, b, ctx := randomInput(rng, p.Config)
	before, err := p.PredictStrength(a, b, ctx)
	require.NoError(t, err)

	snap := p.snapshot()
	for _, row := range p.paramSlices() {
		for i := range row {
			row[i] += 0.5
		}
	}
	perturbed, err := p.PredictStrength(a, b, ctx)
	require.NoError(t, err)
	require.NotEqual(t, before, perturbed)

	p.restore(snap)
	after, err := p.PredictStrength(a, b, ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestModelLoadError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ModelLoadError{Path: "p", Err: inner}
	assert.ErrorIs(t, err, inner)
}
