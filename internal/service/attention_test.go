package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockLinkStore struct {
	links map[string]*domain.AttentionLink
}

func newMockLinkStore() *mockLinkStore {
	return &mockLinkStore{links: make(map[string]*domain.AttentionLink)}
}

func linkKey(a, b string) string {
	a, b = domain.NormalizePair(a, b)
	return a + "|" + b
}

func (m *mockLinkStore) Get(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (*domain.AttentionLink, error) {
	link, ok := m.links[linkKey(conceptA, conceptB)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return link, nil
}

func (m *mockLinkStore) GetByTenant(ctx context.Context, tenantID uuid.UUID, minStrength float32) ([]domain.AttentionLink, error) {
	var out []domain.AttentionLink
	for _, l := range m.links {
		if l.Strength > minStrength {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *mockLinkStore) apply(up domain.LinkUpsert) {
	a, b := domain.NormalizePair(up.ConceptA, up.ConceptB)
	key := linkKey(a, b)
	if existing, ok := m.links[key]; ok {
		existing.Strength = up.Strength
		existing.LinkType = up.LinkType
		existing.CoOccurrenceCount++
		return
	}
	m.links[key] = &domain.AttentionLink{
		ConceptA:          a,
		ConceptB:          b,
		Strength:          up.Strength,
		LinkType:          up.LinkType,
		CoOccurrenceCount: 1,
	}
}

func (m *mockLinkStore) Upsert(ctx context.Context, tenantID uuid.UUID, up domain.LinkUpsert) error {
	m.apply(up)
	return nil
}

func (m *mockLinkStore) UpsertBatch(ctx context.Context, tenantID uuid.UUID, ups []domain.LinkUpsert) error {
	for _, up := range ups {
		m.apply(up)
	}
	return nil
}

func (m *mockLinkStore) GetStats(ctx context.Context, tenantID uuid.UUID) (map[domain.LinkType]domain.LinkTypeStats, error) {
	stats := make(map[domain.LinkType]domain.LinkTypeStats)
	for _, l := range m.links {
		s := stats[l.LinkType]
		s.Count++
		if l.Strength > s.MaxStrength {
			s.MaxStrength = l.Strength
		}
		stats[l.LinkType] = s
	}
	return stats, nil
}

type mockConceptStore struct {
	descriptions map[string]string
	embeddings   map[string][]float32
}

func newMockConceptStore() *mockConceptStore {
	return &mockConceptStore{
		descriptions: make(map[string]string),
		embeddings:   make(map[string][]float32),
	}
}

func (m *mockConceptStore) Create(ctx context.Context, c *domain.Concept) error {
	m.descriptions[c.Name] = c.Description
	return nil
}

func (m *mockConceptStore) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Concept, error) {
	desc, ok := m.descriptions[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &domain.Concept{TenantID: tenantID, Name: name, Description: desc}, nil
}

func (m *mockConceptStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.Concept, error) {
	return nil, nil
}

func (m *mockConceptStore) UpdateEmbedding(ctx context.Context, tenantID uuid.UUID, name string, embedding []float32) error {
	if _, ok := m.descriptions[name]; !ok {
		return store.ErrNotFound
	}
	m.embeddings[name] = embedding
	return nil
}

type mockPredictor struct {
	strength float64
	err      error
	calls    int
}

func (m *mockPredictor) PredictLink(descA, descB string, neuralPrior bool) (float64, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.strength, nil
}

func (m *mockPredictor) EncodeConcept(text string) []float32 {
	return make([]float32, 64)
}

func TestUpdateAttentionGraph_HeuristicIncrement(t *testing.T) {
	linkStore := newMockLinkStore()
	svc := NewAttentionService(linkStore, newMockConceptStore(), nil, zap.NewNop())
	tenantID := uuid.New()

	for i := 0; i < 5; i++ {
		if err := svc.UpdateAttentionGraph(context.Background(), tenantID, "goroutines", []string{"channels"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	link, err := linkStore.Get(context.Background(), tenantID, "goroutines", "channels")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Strength < 0.499 || link.Strength > 0.501 {
		t.Errorf("strength after 5 co-occurrences = %f, want ~0.5", link.Strength)
	}
	if link.LinkType != domain.LinkHebbian {
		t.Errorf("link type = %s, want hebbian", link.LinkType)
	}
	if link.CoOccurrenceCount != 5 {
		t.Errorf("co-occurrence count = %d, want 5", link.CoOccurrenceCount)
	}
}

func TestUpdateAttentionGraph_HeuristicClampsAtOne(t *testing.T) {
	linkStore := newMockLinkStore()
	svc := NewAttentionService(linkStore, newMockConceptStore(), nil, zap.NewNop())
	tenantID := uuid.New()

	for i := 0; i < 15; i++ {
		if err := svc.UpdateAttentionGraph(context.Background(), tenantID, "cache", []string{"redis"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	link, err := linkStore.Get(context.Background(), tenantID, "cache", "redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Strength != 1.0 {
		t.Errorf("strength = %f, want clamped at 1.0", link.Strength)
	}
}

func TestUpdateAttentionGraph_OrderNormalized(t *testing.T) {
	linkStore := newMockLinkStore()
	svc := NewAttentionService(linkStore, newMockConceptStore(), nil, zap.NewNop())
	tenantID := uuid.New()

	// Same pair in both orders lands on one row.
	if err := svc.UpdateAttentionGraph(context.Background(), tenantID, "synapse", []string{"neuron"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.UpdateAttentionGraph(context.Background(), tenantID, "neuron", []string{"synapse"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(linkStore.links) != 1 {
		t.Fatalf("link rows = %d, want 1", len(linkStore.links))
	}
	link, err := linkStore.Get(context.Background(), tenantID, "neuron", "synapse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.ConceptA != "neuron" || link.ConceptB != "synapse" {
		t.Errorf("stored pair = (%s, %s), want canonical order (neuron, synapse)", link.ConceptA, link.ConceptB)
	}
	if link.CoOccurrenceCount != 2 {
		t.Errorf("co-occurrence count = %d, want 2", link.CoOccurrenceCount)
	}
}

func TestUpdateAttentionGraph_SkipsSelfAndDuplicates(t *testing.T) {
	linkStore := newMockLinkStore()
	svc := NewAttentionService(linkStore, newMockConceptStore(), nil, zap.NewNop())
	tenantID := uuid.New()

	err := svc.UpdateAttentionGraph(context.Background(), tenantID, "go",
		[]string{"go", "", "channels", "channels", "mutex"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(linkStore.links) != 2 {
		t.Errorf("link rows = %d, want 2 (self-pair, empty, and duplicate skipped)", len(linkStore.links))
	}
	link, _ := linkStore.Get(context.Background(), tenantID, "go", "channels")
	if link == nil || link.CoOccurrenceCount != 1 {
		t.Error("duplicate context concept should count once per event")
	}
}

func TestUpdateAttentionGraph_NeuralStrategy(t *testing.T) {
	linkStore := newMockLinkStore()
	conceptStore := newMockConceptStore()
	conceptStore.descriptions["postgres"] = "relational database"
	conceptStore.descriptions["sql"] = "query language"

	predictor := &mockPredictor{strength: 0.42}
	svc := NewAttentionService(linkStore, conceptStore, predictor, zap.NewNop())
	tenantID := uuid.New()

	if !svc.UsingNeural() {
		t.Fatal("expected neural strategy with a loaded predictor")
	}

	if err := svc.UpdateAttentionGraph(context.Background(), tenantID, "postgres", []string{"sql"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	link, err := linkStore.Get(context.Background(), tenantID, "postgres", "sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.Strength != 0.42 {
		t.Errorf("strength = %f, want 0.42 from the model", link.Strength)
	}
	if link.LinkType != domain.LinkNeural {
		t.Errorf("link type = %s, want neural", link.LinkType)
	}
	if predictor.calls != 1 {
		t.Errorf("predictor calls = %d, want 1", predictor.calls)
	}

	// The learned concept's embedding gets cached back onto its row.
	if _, ok := conceptStore.embeddings["postgres"]; !ok {
		t.Error("expected cached embedding for the learned concept")
	}
}

func TestUpdateAttentionGraph_PerPairFallback(t *testing.T) {
	linkStore := newMockLinkStore()
	conceptStore := newMockConceptStore()
	predictor := &mockPredictor{err: fmt.Errorf("prediction blew up")}
	svc := NewAttentionService(linkStore, conceptStore, predictor, zap.NewNop())
	tenantID := uuid.New()

	// Model failure downgrades the pair to the heuristic, never fails the event.
	if err := svc.UpdateAttentionGraph(context.Background(), tenantID, "docker", []string{"kubernetes"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	link, err := linkStore.Get(context.Background(), tenantID, "docker", "kubernetes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.LinkType != domain.LinkHebbian {
		t.Errorf("link type = %s, want hebbian fallback", link.LinkType)
	}
	if link.Strength < 0.099 || link.Strength > 0.101 {
		t.Errorf("strength = %f, want heuristic 0.1", link.Strength)
	}
}

func TestLoadModel_MissingArtifactWithFallback(t *testing.T) {
	predictor, err := LoadModel(AttentionConfig{
		Enabled:             true,
		ModelPath:           filepath.Join(t.TempDir(), "nope.json"),
		FallbackToHeuristic: true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error with fallback enabled: %v", err)
	}
	if predictor != nil {
		t.Fatal("expected nil predictor after failed load")
	}

	// The service still works heuristic-only.
	linkStore := newMockLinkStore()
	svc := NewAttentionService(linkStore, newMockConceptStore(), predictor, zap.NewNop())
	if svc.UsingNeural() {
		t.Error("expected heuristic strategy after failed load")
	}
	if err := svc.UpdateAttentionGraph(context.Background(), uuid.New(), "a", []string{"b"}); err != nil {
		t.Errorf("heuristic update failed: %v", err)
	}
}

func TestLoadModel_MissingArtifactWithoutFallback(t *testing.T) {
	_, err := LoadModel(AttentionConfig{
		Enabled:             true,
		ModelPath:           filepath.Join(t.TempDir(), "nope.json"),
		FallbackToHeuristic: false,
	}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error with fallback disabled")
	}
}

func TestLoadModel_Disabled(t *testing.T) {
	predictor, err := LoadModel(AttentionConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if predictor != nil {
		t.Fatal("expected nil predictor when disabled")
	}
}

func TestPredictPair_NoModel(t *testing.T) {
	svc := NewAttentionService(newMockLinkStore(), newMockConceptStore(), nil, zap.NewNop())

	_, err := svc.PredictPair(context.Background(), uuid.New(), "a", "b")
	if err != ErrModelNotLoaded {
		t.Errorf("err = %v, want ErrModelNotLoaded", err)
	}
}

func TestPredictPair_DoesNotPersist(t *testing.T) {
	linkStore := newMockLinkStore()
	predictor := &mockPredictor{strength: 0.8}
	svc := NewAttentionService(linkStore, newMockConceptStore(), predictor, zap.NewNop())

	strength, err := svc.PredictPair(context.Background(), uuid.New(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strength != 0.8 {
		t.Errorf("strength = %f, want 0.8", strength)
	}
	if len(linkStore.links) != 0 {
		t.Error("prediction must not write links")
	}
}

func TestPredictPair_ReturnsModelOutputExactly(t *testing.T) {
	// The read-only path keeps the model's float64 output unnarrowed.
	predictor := &mockPredictor{strength: 0.8}
	svc := NewAttentionService(newMockLinkStore(), newMockConceptStore(), predictor, zap.NewNop())

	strength, err := svc.PredictPair(context.Background(), uuid.New(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strength != 0.8 {
		t.Errorf("strength = %v, want exactly 0.8", strength)
	}
}

func TestPredictPair_ClampsOutOfRange(t *testing.T) {
	predictor := &mockPredictor{strength: 1.5}
	svc := NewAttentionService(newMockLinkStore(), newMockConceptStore(), predictor, zap.NewNop())

	strength, err := svc.PredictPair(context.Background(), uuid.New(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strength != 1.0 {
		t.Errorf("strength = %v, want clamped to 1.0", strength)
	}
}

func TestGetAttentionStats(t *testing.T) {
	linkStore := newMockLinkStore()
	linkStore.apply(domain.LinkUpsert{ConceptA: "a", ConceptB: "b", Strength: 0.4, LinkType: domain.LinkHebbian})
	linkStore.apply(domain.LinkUpsert{ConceptA: "a", ConceptB: "c", Strength: 0.9, LinkType: domain.LinkNeural})

	svc := NewAttentionService(linkStore, newMockConceptStore(), &mockPredictor{}, zap.NewNop())

	stats, err := svc.GetAttentionStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.ModelLoaded || !stats.UsingNeural {
		t.Error("expected neural flags set with a loaded predictor")
	}
	if stats.ByType[domain.LinkHebbian].Count != 1 || stats.ByType[domain.LinkNeural].Count != 1 {
		t.Errorf("stats by type = %+v", stats.ByType)
	}
}
