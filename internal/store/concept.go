package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type ConceptStore struct {
	db *pgxpool.Pool
}

func NewConceptStore(db *pgxpool.Pool) *ConceptStore {
	return &ConceptStore{db: db}
}

func (s *ConceptStore) Create(ctx context.Context, c *domain.Concept) error {
	var embedding *pgvector.Vector
	if len(c.Embedding) > 0 {
		v := pgvector.NewVector(c.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO concepts (tenant_id, name, description, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, name) DO UPDATE
		 SET description = COALESCE(NULLIF(EXCLUDED.description, ''), concepts.description),
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		c.TenantID, c.Name, c.Description, embedding,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (s *ConceptStore) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*domain.Concept, error) {
	c := &domain.Concept{}
	var embedding *pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, embedding, created_at, updated_at
		 FROM concepts WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &embedding, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	return c, nil
}

func (s *ConceptStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.Concept, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, name, description, created_at, updated_at
		 FROM concepts WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var concepts []domain.Concept
	for rows.Next() {
		var c domain.Concept
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

func (s *ConceptStore) UpdateEmbedding(ctx context.Context, tenantID uuid.UUID, name string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	tag, err := s.db.Exec(ctx,
		`UPDATE concepts SET embedding = $3, updated_at = NOW()
		 WHERE tenant_id = $1 AND name = $2`,
		tenantID, name, vec,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ domain.ConceptStore = (*ConceptStore)(nil)
