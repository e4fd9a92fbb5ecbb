package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/database"
	"reservation-platform/shared/models"
)

type ResourceStore struct {
	db *sqlx.DB
}

func NewResourceStore(db *sqlx.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

func (s *ResourceStore) GetResource(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	var r models.Resource
	err := s.db.GetContext(ctx, &r, `
		SELECT id, tenant_id, category_id, name, status, availability_schedule, created_at, updated_at
		FROM resources WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %s: %w", id, apperror.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return &r, nil
}

func (s *ResourceStore) ResourceIDsByTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM resources WHERE tenant_id = $1", tenantID); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return ids, nil
}

// DeleteByTenant removes the tenant's resources, then its resource
// categories. It returns the ids of the deleted resources.
func (s *ResourceStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := sqlx.SelectContext(ctx, tx, &ids,
			"DELETE FROM resources WHERE tenant_id = $1 RETURNING id", tenantID)
		if err != nil {
			return fmt.Errorf("failed to delete resources: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM resource_categories WHERE tenant_id = $1", tenantID); err != nil {
			return fmt.Errorf("failed to delete resource categories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
