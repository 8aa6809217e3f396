package service

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/Harshitk-cp/synapse/internal/neural"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrModelNotLoaded is returned by PredictPair when the service is running
// heuristic-only.
var ErrModelNotLoaded = errors.New("no model loaded")

// hebbianIncrement is the fixed strength boost applied per co-occurrence on
// the heuristic path.
const hebbianIncrement = 0.1

// Predictor is the model dependency of the updater. Injected at construction
// so tests can substitute mocks; nil means heuristic-only.
type Predictor interface {
	PredictLink(descA, descB string, neuralPrior bool) (float64, error)
	EncodeConcept(text string) []float32
}

// AttentionConfig mirrors the attention-related runtime configuration.
type AttentionConfig struct {
	Enabled             bool
	ModelPath           string
	FallbackToHeuristic bool
}

// LoadModel resolves the configured model artifact into a Predictor. A load
// failure with fallback enabled degrades to heuristic-only (nil predictor)
// for the lifetime of the updater; with fallback disabled it is fatal.
func LoadModel(cfg AttentionConfig, logger *zap.Logger) (Predictor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	predictor, err := neural.Load(cfg.ModelPath)
	if err != nil {
		if cfg.FallbackToHeuristic {
			logger.Warn("model load failed, running heuristic-only",
				zap.String("model_path", cfg.ModelPath),
				zap.Error(err),
			)
			return nil, nil
		}
		return nil, err
	}
	logger.Info("attention model loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.Int("parameters", predictor.CountParameters()),
	)
	return predictor, nil
}

// AttentionStats is the observability view over the link table.
type AttentionStats struct {
	ByType      map[domain.LinkType]domain.LinkTypeStats `json:"by_type"`
	UsingNeural bool                                     `json:"using_neural"`
	ModelLoaded bool                                     `json:"model_loaded"`
}

// linkStrategy computes the next strength for one concept pair. Two
// implementations: neural (model-backed) and heuristic (fixed increment).
type linkStrategy interface {
	updateLink(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (float32, domain.LinkType, error)
}

// AttentionService is the runtime graph updater, invoked synchronously once
// per learning event. The strategy is chosen once at construction; a per-pair
// prediction failure falls back to the heuristic for that pair only, and
// there is no heuristic-to-neural transition without constructing a new
// service around a freshly loaded model.
type AttentionService struct {
	linkStore    domain.LinkStore
	conceptStore domain.ConceptStore
	predictor    Predictor
	strategy     linkStrategy
	heuristic    linkStrategy
	logger       *zap.Logger
}

func NewAttentionService(
	linkStore domain.LinkStore,
	conceptStore domain.ConceptStore,
	predictor Predictor,
	logger *zap.Logger,
) *AttentionService {
	s := &AttentionService{
		linkStore:    linkStore,
		conceptStore: conceptStore,
		predictor:    predictor,
		logger:       logger,
	}
	s.heuristic = &heuristicStrategy{linkStore: linkStore}
	if predictor != nil {
		s.strategy = &neuralStrategy{
			linkStore:    linkStore,
			conceptStore: conceptStore,
			predictor:    predictor,
		}
	} else {
		s.strategy = s.heuristic
	}
	return s
}

// UsingNeural reports whether the neural strategy is active.
func (s *AttentionService) UsingNeural() bool {
	_, ok := s.strategy.(*neuralStrategy)
	return ok
}

// UpdateAttentionGraph links the newly learned concept with every
// co-occurring context concept. Self-pairs and duplicates are skipped. All
// upserts for the event commit as a single unit; a model failure on one pair
// downgrades that pair to the heuristic rule and never fails the event.
func (s *AttentionService) UpdateAttentionGraph(ctx context.Context, tenantID uuid.UUID, concept string, contextConcepts []string) error {
	ups := make([]domain.LinkUpsert, 0, len(contextConcepts))
	seen := make(map[string]bool, len(contextConcepts))

	for _, other := range contextConcepts {
		if other == "" || other == concept {
			continue
		}
		a, b := domain.NormalizePair(concept, other)
		key := a + "\x00" + b
		if seen[key] {
			continue
		}
		seen[key] = true

		strength, linkType, err := s.strategy.updateLink(ctx, tenantID, concept, other)
		if err != nil {
			s.logger.Warn("link prediction failed, using heuristic for pair",
				zap.String("tenant_id", tenantID.String()),
				zap.String("concept_a", a),
				zap.String("concept_b", b),
				zap.Error(err),
			)
			strength, linkType, err = s.heuristic.updateLink(ctx, tenantID, concept, other)
			if err != nil {
				return err
			}
		}

		ups = append(ups, domain.LinkUpsert{
			ConceptA: a,
			ConceptB: b,
			Strength: strength,
			LinkType: linkType,
		})
	}

	if err := s.linkStore.UpsertBatch(ctx, tenantID, ups); err != nil {
		return err
	}

	s.cacheEmbedding(ctx, tenantID, concept)
	return nil
}

// cacheEmbedding writes the encoder output for the learned concept back onto
// its row, best-effort, so the vector is inspectable in SQL.
func (s *AttentionService) cacheEmbedding(ctx context.Context, tenantID uuid.UUID, concept string) {
	if s.predictor == nil {
		return
	}
	c, err := s.conceptStore.GetByName(ctx, tenantID, concept)
	if err != nil || c.Description == "" {
		return
	}
	if err := s.conceptStore.UpdateEmbedding(ctx, tenantID, concept, s.predictor.EncodeConcept(c.Description)); err != nil {
		s.logger.Debug("failed to cache concept embedding",
			zap.String("concept", concept),
			zap.Error(err),
		)
	}
}

// PredictPair runs the loaded model over one concept pair without writing
// anything.
func (s *AttentionService) PredictPair(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (float64, error) {
	if s.predictor == nil {
		return 0, ErrModelNotLoaded
	}
	ns := &neuralStrategy{
		linkStore:    s.linkStore,
		conceptStore: s.conceptStore,
		predictor:    s.predictor,
	}
	return ns.predict(ctx, tenantID, conceptA, conceptB)
}

func (s *AttentionService) GetAttentionStats(ctx context.Context, tenantID uuid.UUID) (*AttentionStats, error) {
	byType, err := s.linkStore.GetStats(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &AttentionStats{
		ByType:      byType,
		UsingNeural: s.UsingNeural(),
		ModelLoaded: s.predictor != nil,
	}, nil
}

// heuristicStrategy is the guaranteed-available Hebbian rule: a fixed
// increment per co-occurrence, clamped at 1.0.
type heuristicStrategy struct {
	linkStore domain.LinkStore
}

func (h *heuristicStrategy) updateLink(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (float32, domain.LinkType, error) {
	existing, err := h.linkStore.Get(ctx, tenantID, conceptA, conceptB)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, "", err
	}

	strength := float32(hebbianIncrement)
	if existing != nil {
		strength = existing.Strength + hebbianIncrement
		if strength > 1.0 {
			strength = 1.0
		}
	}
	return strength, domain.LinkHebbian, nil
}

// neuralStrategy encodes both concepts' descriptions with the model's own
// vocabulary and asks the predictor for the new strength. Concepts missing a
// description (or missing entirely) encode to the zero vector, matching the
// training pipeline.
type neuralStrategy struct {
	linkStore    domain.LinkStore
	conceptStore domain.ConceptStore
	predictor    Predictor
}

func (n *neuralStrategy) updateLink(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (float32, domain.LinkType, error) {
	strength, err := n.predict(ctx, tenantID, conceptA, conceptB)
	if err != nil {
		return 0, "", err
	}
	return float32(strength), domain.LinkNeural, nil
}

// predict runs the model over one pair and clamps the result to [0,1]. Kept in
// float64 so read-only callers get the model's output unnarrowed.
func (n *neuralStrategy) predict(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (float64, error) {
	descA, err := n.description(ctx, tenantID, conceptA)
	if err != nil {
		return 0, err
	}
	descB, err := n.description(ctx, tenantID, conceptB)
	if err != nil {
		return 0, err
	}

	// The context vector carries the existing row's link type; a fresh pair
	// counts as hebbian, matching how training examples were derived.
	neuralPrior := false
	existing, err := n.linkStore.Get(ctx, tenantID, conceptA, conceptB)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if existing != nil {
		neuralPrior = existing.LinkType == domain.LinkNeural
	}

	strength, err := n.predictor.PredictLink(descA, descB, neuralPrior)
	if err != nil {
		return 0, err
	}
	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}
	return strength, nil
}

func (n *neuralStrategy) description(ctx context.Context, tenantID uuid.UUID, name string) (string, error) {
	c, err := n.conceptStore.GetByName(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return c.Description, nil
}
