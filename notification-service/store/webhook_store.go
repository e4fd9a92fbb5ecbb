package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reservation-platform/shared/database"
	"reservation-platform/shared/models"
)

type WebhookStore struct {
	db *sqlx.DB
}

func NewWebhookStore(db *sqlx.DB) *WebhookStore {
	return &WebhookStore{db: db}
}

// ActiveForEvent returns the tenant's active webhooks subscribed to event.
func (s *WebhookStore) ActiveForEvent(ctx context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error) {
	var hooks []models.Webhook
	err := s.db.SelectContext(ctx, &hooks, `
		SELECT id, tenant_id, url, events, secret, is_active, created_at, updated_at
		FROM webhooks
		WHERE tenant_id = $1 AND is_active = TRUE AND $2 = ANY(events)
		ORDER BY created_at`, tenantID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return hooks, nil
}

func (s *WebhookStore) RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, tenant_id, event, status_code, success, error, delivered_at)
		VALUES (:id, :webhook_id, :tenant_id, :event, :status_code, :success, :error, :delivered_at)`, d)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

// DeleteByTenant removes the tenant's delivery log, then its webhooks.
func (s *WebhookStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var deleted int64
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM webhook_deliveries WHERE tenant_id = $1", tenantID); err != nil {
			return fmt.Errorf("failed to delete webhook deliveries: %w", err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM webhooks WHERE tenant_id = $1", tenantID)
		if err != nil {
			return fmt.Errorf("failed to delete webhooks: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
