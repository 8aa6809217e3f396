package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Concept is a named entity/topic extracted from learning events.
// Names are unique within a tenant; the description feeds the embedding encoder.
type Concept struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ConceptStore interface {
	Create(ctx context.Context, c *Concept) error
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*Concept, error)
	GetByTenant(ctx context.Context, tenantID uuid.UUID) ([]Concept, error)
	UpdateEmbedding(ctx context.Context, tenantID uuid.UUID, name string, embedding []float32) error
}
