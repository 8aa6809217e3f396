package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LinkType string

const (
	LinkHebbian LinkType = "hebbian"
	LinkNeural  LinkType = "neural"
)

func ValidLinkType(t string) bool {
	switch LinkType(t) {
	case LinkHebbian, LinkNeural:
		return true
	}
	return false
}

// AttentionLink is a weighted association edge between two concepts.
// Keys are order-normalized: ConceptA < ConceptB lexicographically, so exactly
// one row exists per unordered pair. Use NormalizePair before any store call.
type AttentionLink struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	ConceptA          string    `json:"concept_a"`
	ConceptB          string    `json:"concept_b"`
	Strength          float32   `json:"strength"`
	LinkType          LinkType  `json:"link_type"`
	CoOccurrenceCount int       `json:"co_occurrence_count"`
	LastActivated     time.Time `json:"last_activated"`
	CreatedAt         time.Time `json:"created_at"`
}

// NormalizePair returns the pair in canonical key order.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// LinkUpsert is one pending write produced by the runtime updater. All upserts
// for a learning event commit together.
type LinkUpsert struct {
	ConceptA string
	ConceptB string
	Strength float32
	LinkType LinkType
}

// LinkTypeStats aggregates link rows of one type for diagnostics.
type LinkTypeStats struct {
	Count       int     `json:"count"`
	AvgStrength float32 `json:"avg_strength"`
	MaxStrength float32 `json:"max_strength"`
}

type LinkStore interface {
	Get(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (*AttentionLink, error)
	// GetByTenant returns all links for a tenant with strength above minStrength.
	GetByTenant(ctx context.Context, tenantID uuid.UUID, minStrength float32) ([]AttentionLink, error)
	Upsert(ctx context.Context, tenantID uuid.UUID, up LinkUpsert) error
	// UpsertBatch applies all upserts in a single transaction (all-or-nothing).
	UpsertBatch(ctx context.Context, tenantID uuid.UUID, ups []LinkUpsert) error
	GetStats(ctx context.Context, tenantID uuid.UUID) (map[LinkType]LinkTypeStats, error)
}
