package neural

import (
	"context"
	"errors"
	"math/rand"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// strengthFloor filters noise links out of the training corpus. Links at or
// below this strength never become training examples.
const strengthFloor = 0.1

// TrainingExample is one supervised pair harvested from the persisted graph.
// Ephemeral: recomputed fresh on every pipeline run, never stored.
type TrainingExample struct {
	ConceptA []float64
	ConceptB []float64
	Context  []float64
	Target   float64
}

// Pipeline turns persisted links and concept descriptions into training data.
type Pipeline struct {
	linkStore    domain.LinkStore
	conceptStore domain.ConceptStore
	logger       *zap.Logger
}

func NewPipeline(linkStore domain.LinkStore, conceptStore domain.ConceptStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		linkStore:    linkStore,
		conceptStore: conceptStore,
		logger:       logger,
	}
}

// rawExample is an un-encoded training row: link attributes joined with both
// endpoint descriptions.
type rawExample struct {
	DescA  string
	DescB  string
	Neural bool
	Target float64
}

// ExtractTrainingData harvests every link above the strength floor, joined
// with both endpoint descriptions, builds a fresh corpus vocabulary, and
// encodes one example per link. Concepts without a description (or missing
// entirely) encode to the zero vector rather than being skipped, so output
// size always equals the filtered link count. The returned vocabulary is the
// one all examples were encoded with.
func (p *Pipeline) ExtractTrainingData(ctx context.Context, tenantID uuid.UUID) ([]TrainingExample, *Vocabulary, error) {
	raw, err := p.extractRaw(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	corpus := make([]string, 0, len(raw)*2)
	seen := make(map[string]bool)
	for _, r := range raw {
		for _, desc := range []string{r.DescA, r.DescB} {
			if desc != "" && !seen[desc] {
				seen[desc] = true
				corpus = append(corpus, desc)
			}
		}
	}
	vocab := BuildVocabulary(corpus)

	examples := encodeExamples(raw, vocab)
	p.logger.Info("extracted training data",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("examples", len(examples)),
		zap.Int("vocabulary_terms", len(vocab.Buckets)),
	)
	return examples, vocab, nil
}

func (p *Pipeline) extractRaw(ctx context.Context, tenantID uuid.UUID) ([]rawExample, error) {
	links, err := p.linkStore.GetByTenant(ctx, tenantID, strengthFloor)
	if err != nil {
		return nil, err
	}

	descriptions := make(map[string]string)
	raw := make([]rawExample, 0, len(links))
	for _, link := range links {
		for _, name := range []string{link.ConceptA, link.ConceptB} {
			if _, ok := descriptions[name]; ok {
				continue
			}
			desc, err := p.lookupDescription(ctx, tenantID, name)
			if err != nil {
				return nil, err
			}
			descriptions[name] = desc
		}
		raw = append(raw, rawExample{
			DescA:  descriptions[link.ConceptA],
			DescB:  descriptions[link.ConceptB],
			Neural: link.LinkType == domain.LinkNeural,
			Target: float64(link.Strength),
		})
	}
	return raw, nil
}

func encodeExamples(raw []rawExample, vocab *Vocabulary) []TrainingExample {
	examples := make([]TrainingExample, 0, len(raw))
	for _, r := range raw {
		examples = append(examples, TrainingExample{
			ConceptA: vocab.EncodeConcept(r.DescA),
			ConceptB: vocab.EncodeConcept(r.DescB),
			Context:  vocab.EncodeContext(r.DescA, r.DescB, r.Neural),
			Target:   r.Target,
		})
	}
	return examples
}

func (p *Pipeline) lookupDescription(ctx context.Context, tenantID uuid.UUID, name string) (string, error) {
	concept, err := p.conceptStore.GetByName(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return concept.Description, nil
}

// TrainTestSplit deterministically partitions examples: same seed, same split.
// ratio is the validation fraction.
func TrainTestSplit(examples []TrainingExample, ratio float64, seed int64) (train, test []TrainingExample) {
	shuffled := make([]TrainingExample, len(examples))
	copy(shuffled, examples)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := len(shuffled) - int(float64(len(shuffled))*ratio)
	return shuffled[:cut], shuffled[cut:]
}
