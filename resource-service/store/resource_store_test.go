package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/models"
)

func newMockStore(t *testing.T) (*ResourceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewResourceStore(sqlx.NewDb(db, "postgres")), mock
}

func TestGetResource(t *testing.T) {
	s, mock := newMockStore(t)
	id, tenantID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM resources WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "category_id", "name", "status", "availability_schedule", "created_at", "updated_at",
		}).AddRow(id.String(), tenantID.String(), uuid.NewString(), "Room A", "disponivel",
			[]byte(`{"monday":["09:00-18:00"]}`), now, now))

	r, err := s.GetResource(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, tenantID, r.TenantID)
	assert.Equal(t, models.ResourceAvailableLegacy, r.Status)
	assert.True(t, r.Status.Bookable())
	assert.JSONEq(t, `{"monday":["09:00-18:00"]}`, r.AvailabilitySchedule.String())
}

func TestGetResourceNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM resources").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetResource(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteByTenantRemovesResourcesBeforeCategories(t *testing.T) {
	s, mock := newMockStore(t)
	tenantID, resourceID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM resources WHERE tenant_id = $1 RETURNING id")).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(resourceID.String()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resource_categories WHERE tenant_id = $1")).
		WithArgs(tenantID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ids, err := s.DeleteByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{resourceID}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceIDsByTenant(t *testing.T) {
	s, mock := newMockStore(t)
	tenantID, r1, r2 := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM resources WHERE tenant_id = $1")).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(r1.String()).AddRow(r2.String()))

	ids, err := s.ResourceIDsByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{r1, r2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
