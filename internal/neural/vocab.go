package neural

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// ConceptDim is the width of a concept embedding.
	ConceptDim = 64
	// ContextDim is the width of a context embedding. The last two dimensions
	// carry a one-hot encoding of the link type; the rest carry term buckets.
	ContextDim = 32

	contextTermDims = ContextDim - 2
)

// Vocabulary maps terms to embedding buckets. It is built once per pipeline
// run over the whole retrieved corpus, and persisted inside the model artifact
// so inference-time encoding matches training-time encoding exactly.
// Encoding is purely local and deterministic: same text + same vocabulary
// gives a bit-identical vector.
type Vocabulary struct {
	// Buckets maps a term to its bucket in [0, ConceptDim).
	Buckets map[string]int `json:"buckets"`
}

// BuildVocabulary ranks corpus terms by frequency (ties broken alphabetically)
// and assigns bucket = rank mod ConceptDim, spreading frequent terms across
// distinct dimensions.
func BuildVocabulary(corpus []string) *Vocabulary {
	freq := make(map[string]int)
	for _, text := range corpus {
		for _, term := range tokenize(text) {
			freq[term]++
		}
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	buckets := make(map[string]int, len(terms))
	for rank, term := range terms {
		buckets[term] = rank % ConceptDim
	}
	return &Vocabulary{Buckets: buckets}
}

// EncodeConcept maps a description to a ConceptDim vector of normalized term
// frequencies. Empty or fully out-of-vocabulary text yields the zero vector.
// Terms outside the vocabulary are dropped, not hashed ad hoc, so training and
// inference stay consistent.
func (v *Vocabulary) EncodeConcept(text string) []float64 {
	vec := make([]float64, ConceptDim)
	terms := tokenize(text)
	if len(terms) == 0 {
		return vec
	}
	for _, term := range terms {
		if bucket, ok := v.Buckets[term]; ok {
			vec[bucket]++
		}
	}
	for i := range vec {
		vec[i] /= float64(len(terms))
	}
	return vec
}

// EncodeContext reduces both endpoint descriptions into contextTermDims
// buckets and appends a one-hot link-type tag, so the model can weight neural
// vs. hebbian training signal differently.
func (v *Vocabulary) EncodeContext(textA, textB string, neural bool) []float64 {
	vec := make([]float64, ContextDim)
	terms := append(tokenize(textA), tokenize(textB)...)
	if len(terms) > 0 {
		for _, term := range terms {
			if bucket, ok := v.Buckets[term]; ok {
				vec[bucket%contextTermDims]++
			}
		}
		for i := 0; i < contextTermDims; i++ {
			vec[i] /= float64(len(terms))
		}
	}
	if neural {
		vec[ContextDim-1] = 1
	} else {
		vec[ContextDim-2] = 1
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
