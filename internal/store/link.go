package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LinkStore struct {
	db *pgxpool.Pool
}

func NewLinkStore(db *pgxpool.Pool) *LinkStore {
	return &LinkStore{db: db}
}

const linkUpsertSQL = `
	INSERT INTO attention_links (tenant_id, concept_a, concept_b, strength, link_type, co_occurrence_count, last_activated)
	VALUES ($1, $2, $3, $4, $5, 1, NOW())
	ON CONFLICT (tenant_id, concept_a, concept_b) DO UPDATE
	SET strength = EXCLUDED.strength,
	    link_type = EXCLUDED.link_type,
	    co_occurrence_count = attention_links.co_occurrence_count + 1,
	    last_activated = NOW()`

func (s *LinkStore) Get(ctx context.Context, tenantID uuid.UUID, conceptA, conceptB string) (*domain.AttentionLink, error) {
	conceptA, conceptB = domain.NormalizePair(conceptA, conceptB)
	link := &domain.AttentionLink{}
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, concept_a, concept_b, strength, link_type, co_occurrence_count, last_activated, created_at
		 FROM attention_links
		 WHERE tenant_id = $1 AND concept_a = $2 AND concept_b = $3`,
		tenantID, conceptA, conceptB,
	).Scan(&link.ID, &link.TenantID, &link.ConceptA, &link.ConceptB, &link.Strength,
		&link.LinkType, &link.CoOccurrenceCount, &link.LastActivated, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return link, nil
}

func (s *LinkStore) GetByTenant(ctx context.Context, tenantID uuid.UUID, minStrength float32) ([]domain.AttentionLink, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, concept_a, concept_b, strength, link_type, co_occurrence_count, last_activated, created_at
		 FROM attention_links
		 WHERE tenant_id = $1 AND strength > $2
		 ORDER BY strength DESC`,
		tenantID, minStrength,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.AttentionLink
	for rows.Next() {
		var link domain.AttentionLink
		if err := rows.Scan(&link.ID, &link.TenantID, &link.ConceptA, &link.ConceptB, &link.Strength,
			&link.LinkType, &link.CoOccurrenceCount, &link.LastActivated, &link.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *LinkStore) Upsert(ctx context.Context, tenantID uuid.UUID, up domain.LinkUpsert) error {
	a, b := domain.NormalizePair(up.ConceptA, up.ConceptB)
	_, err := s.db.Exec(ctx, linkUpsertSQL, tenantID, a, b, up.Strength, up.LinkType)
	return err
}

// UpsertBatch writes all upserts for one learning event in a single
// transaction, so the event commits all-or-nothing.
func (s *LinkStore) UpsertBatch(ctx context.Context, tenantID uuid.UUID, ups []domain.LinkUpsert) error {
	if len(ups) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, up := range ups {
		a, b := domain.NormalizePair(up.ConceptA, up.ConceptB)
		if _, err := tx.Exec(ctx, linkUpsertSQL, tenantID, a, b, up.Strength, up.LinkType); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *LinkStore) GetStats(ctx context.Context, tenantID uuid.UUID) (map[domain.LinkType]domain.LinkTypeStats, error) {
	rows, err := s.db.Query(ctx,
		`SELECT link_type, COUNT(*), AVG(strength), MAX(strength)
		 FROM attention_links
		 WHERE tenant_id = $1
		 GROUP BY link_type`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[domain.LinkType]domain.LinkTypeStats)
	for rows.Next() {
		var linkType domain.LinkType
		var st domain.LinkTypeStats
		if err := rows.Scan(&linkType, &st.Count, &st.AvgStrength, &st.MaxStrength); err != nil {
			return nil, err
		}
		stats[linkType] = st
	}
	return stats, rows.Err()
}

var _ domain.LinkStore = (*LinkStore)(nil)
