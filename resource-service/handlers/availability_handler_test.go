package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-platform/resource-service/services"
	"reservation-platform/shared/apperror"
	"reservation-platform/shared/auth"
	"reservation-platform/shared/config"
	"reservation-platform/shared/models"
	"reservation-platform/shared/policy"
	"reservation-platform/shared/scheduling"
)

type stubAvailability struct {
	tenantID uuid.UUID
	dates    []string
	err      error
}

func (s *stubAvailability) ComputeAvailability(_ context.Context, tenantID, resourceID uuid.UUID, date string) (*models.Availability, error) {
	s.dates = append(s.dates, date)
	if s.err != nil {
		return nil, s.err
	}
	if tenantID != s.tenantID {
		return nil, apperror.ErrNotFound
	}
	start := time.Date(2025, 1, 27, 9, 0, 0, 0, time.UTC)
	return &models.Availability{
		ResourceID: resourceID,
		TenantID:   s.tenantID,
		Date:       date,
		Timezone:   "UTC",
		Slots:      []models.AvailabilitySlot{{Start: start, End: start.Add(time.Hour)}},
	}, nil
}

func setupRouter(api AvailabilityAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth.Initialize(&config.Config{})

	h := NewAvailabilityHandler(api)
	h.now = func() time.Time { return time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC) }

	r := gin.New()
	SetupRoutes(r, h)
	return r
}

func get(r *gin.Engine, path string, tenantID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if tenantID != uuid.Nil {
		req.Header.Set("X-Tenant-ID", tenantID.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetAvailability(t *testing.T) {
	tenantID, resourceID := uuid.New(), uuid.New()
	api := &stubAvailability{tenantID: tenantID}
	r := setupRouter(api)

	w := get(r, fmt.Sprintf("/resources/%s/availability?date=2025-01-27", resourceID), tenantID)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ResourceID uuid.UUID `json:"resource_id"`
		Date       string    `json:"date"`
		Slots      []struct {
			Start time.Time `json:"start_time"`
			End   time.Time `json:"end_time"`
		} `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, resourceID, body.ResourceID)
	assert.Equal(t, "2025-01-27", body.Date)
	require.Len(t, body.Slots, 1)
	assert.Equal(t, 9, body.Slots[0].Start.Hour())
}

func TestGetAvailabilityDefaultsToToday(t *testing.T) {
	tenantID := uuid.New()
	api := &stubAvailability{tenantID: tenantID}
	r := setupRouter(api)

	w := get(r, fmt.Sprintf("/resources/%s/availability", uuid.New()), tenantID)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2025-01-20"}, api.dates)
}

func TestGetAvailabilityErrors(t *testing.T) {
	tenantID := uuid.New()
	path := fmt.Sprintf("/resources/%s/availability?date=2025-01-27", uuid.New())

	tests := []struct {
		name   string
		path   string
		tenant uuid.UUID
		api    *stubAvailability
		status int
		code   string
	}{
		{"no tenant", path, uuid.Nil, &stubAvailability{tenantID: tenantID}, http.StatusUnauthorized, "missing_tenant"},
		{"bad id", "/resources/nope/availability", tenantID, &stubAvailability{}, http.StatusBadRequest, "validation_error"},
		{"other tenant", path, tenantID, &stubAvailability{tenantID: uuid.New()}, http.StatusNotFound, "not_found"},
		{"missing", path, tenantID, &stubAvailability{err: apperror.ErrNotFound}, http.StatusNotFound, "not_found"},
		{"not bookable", path, tenantID, &stubAvailability{err: apperror.ErrUnavailable}, http.StatusUnprocessableEntity, "unavailable"},
		{"past date", path, tenantID, &stubAvailability{err: apperror.Violation(apperror.RuleDateInPast, "2025-01-20", "date is in the past")}, http.StatusBadRequest, "date_in_past"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(setupRouter(tt.api), tt.path, tt.tenant)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

type resourceRepo map[uuid.UUID]*models.Resource

func (r resourceRepo) GetResource(_ context.Context, id uuid.UUID) (*models.Resource, error) {
	if res, ok := r[id]; ok {
		return res, nil
	}
	return nil, apperror.ErrNotFound
}

type noBookings struct{}

func (noBookings) ActiveBookings(context.Context, uuid.UUID, uuid.UUID, time.Time, time.Time) []models.Booking {
	return nil
}

func TestGetAvailabilityForeignResourceIsNotFound(t *testing.T) {
	owner := uuid.New()
	resource := &models.Resource{
		ID:                   uuid.New(),
		TenantID:             owner,
		Name:                 "Court 2",
		Status:               models.ResourceMaintenance,
		AvailabilitySchedule: []byte(`{"monday": ["09:00-18:00"]}`),
	}
	settings := policy.Settings{
		Timezone:           "UTC",
		WorkingHoursStart:  scheduling.NewTimeOfDay(8, 0),
		WorkingHoursEnd:    scheduling.NewTimeOfDay(18, 0),
		BookingInterval:    60,
		AdvanceBookingDays: 30,
	}
	svc := services.NewAvailabilityService(resourceRepo{resource.ID: resource}, noBookings{}, policy.StaticResolver(settings), nil, time.Minute).
		WithClock(func() time.Time { return time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC) })
	r := setupRouter(svc)

	for _, date := range []string{"2025-01-27", "2025-01-01", "2025-06-01"} {
		w := get(r, fmt.Sprintf("/resources/%s/availability?date=%s", resource.ID, date), uuid.New())
		assert.Equal(t, http.StatusNotFound, w.Code, date)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "not_found", body["error"])
		assert.NotContains(t, w.Body.String(), "maintenance")
	}

	w := get(r, fmt.Sprintf("/resources/%s/availability?date=2025-01-27", resource.ID), owner)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
