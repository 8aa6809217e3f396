package neural

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVocabulary_Deterministic(t *testing.T) {
	corpus := []string{
		"goroutines are lightweight threads",
		"channels connect goroutines",
		"mutex protects shared state",
	}

	v1 := BuildVocabulary(corpus)
	v2 := BuildVocabulary(corpus)

	assert.Equal(t, v1.Buckets, v2.Buckets)
	assert.Contains(t, v1.Buckets, "goroutines")
}

func TestBuildVocabulary_RanksByFrequency(t *testing.T) {
	// "alpha" appears three times, so it outranks everything and lands in
	// bucket 0. Ties break alphabetically.
	corpus := []string{"alpha alpha", "alpha beta", "beta gamma"}
	v := BuildVocabulary(corpus)

	assert.Equal(t, 0, v.Buckets["alpha"])
	assert.Equal(t, 1, v.Buckets["beta"])
	assert.Equal(t, 2, v.Buckets["gamma"])
}

func TestEncodeConcept_Deterministic(t *testing.T) {
	v := BuildVocabulary([]string{"relational database with transactions"})

	a := v.EncodeConcept("relational database")
	b := v.EncodeConcept("relational database")

	require.Len(t, a, ConceptDim)
	assert.Equal(t, a, b)
}

func TestEncodeConcept_EmptyAndOOV(t *testing.T) {
	v := BuildVocabulary([]string{"known terms only"})
	zero := make([]float64, ConceptDim)

	assert.Equal(t, zero, v.EncodeConcept(""))
	// Out-of-vocabulary terms are dropped, leaving the zero vector.
	assert.Equal(t, zero, v.EncodeConcept("completely unseen words"))
}

func TestEncodeConcept_NormalizedFrequencies(t *testing.T) {
	v := BuildVocabulary([]string{"cache cache store"})

	vec := v.EncodeConcept("cache cache store")
	sum := 0.0
	for _, x := range vec {
		sum += x
	}
	// All three tokens are in vocabulary, so normalized counts sum to 1.
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEncodeContext_LinkTypeTag(t *testing.T) {
	v := BuildVocabulary([]string{"some description text"})

	hebbian := v.EncodeContext("some description", "text", false)
	neural := v.EncodeContext("some description", "text", true)

	require.Len(t, hebbian, ContextDim)
	assert.Equal(t, 1.0, hebbian[ContextDim-2])
	assert.Equal(t, 0.0, hebbian[ContextDim-1])
	assert.Equal(t, 0.0, neural[ContextDim-2])
	assert.Equal(t, 1.0, neural[ContextDim-1])
}

func TestVocabulary_JSONRoundTrip(t *testing.T) {
	v := BuildVocabulary([]string{"persisted inside the model artifact"})

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var back Vocabulary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, v.Buckets, back.Buckets)

	// Round-tripped vocabulary encodes identically.
	assert.Equal(t, v.EncodeConcept("model artifact"), back.EncodeConcept("model artifact"))
}

func TestTokenize_LowercasesAndSplits(t *testing.T) {
	terms := tokenize("HTTP/2, gRPC-based APIs!")
	assert.Equal(t, []string{"http", "2", "grpc", "based", "apis"}, terms)
}
