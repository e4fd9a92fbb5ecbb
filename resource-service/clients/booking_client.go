package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"reservation-platform/shared/auth"
	"reservation-platform/shared/config"
	"reservation-platform/shared/models"
)

const (
	serviceUserID = "resource-service"
	serviceRole   = "service"
	tokenTTL      = time.Minute

	// One day of one resource; the booking list endpoint caps at 500.
	lookupLimit = "500"
)

// BookingClient looks up bookings in booking-service.
type BookingClient struct {
	baseURL string
	http    *http.Client
}

func NewBookingClient(cfg *config.Config) *BookingClient {
	return &BookingClient{
		baseURL: strings.TrimRight(cfg.Services.BookingServiceURL, "/"),
		http:    &http.Client{Timeout: cfg.Services.LookupTimeout},
	}
}

type listResponse struct {
	Bookings []models.Booking `json:"bookings"`
}

// ActiveBookings returns the active bookings of a resource overlapping
// [start,end). A failed lookup is logged and treated as no bookings, so
// availability can over-report free slots but never hides one.
func (c *BookingClient) ActiveBookings(ctx context.Context, tenantID, resourceID uuid.UUID, start, end time.Time) []models.Booking {
	log := logrus.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"resource_id": resourceID,
	})

	bookings, err := c.list(ctx, tenantID, resourceID, start, end)
	if err != nil {
		log.WithError(err).Warn("Booking lookup failed, assuming no bookings")
		return nil
	}
	return bookings
}

func (c *BookingClient) list(ctx context.Context, tenantID, resourceID uuid.UUID, start, end time.Time) ([]models.Booking, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID.String())
	q.Set("resource_id", resourceID.String())
	q.Set("start_date", start.UTC().Format(time.RFC3339))
	q.Set("end_date", end.UTC().Format(time.RFC3339))
	q.Set("status", string(models.BookingPending)+","+string(models.BookingConfirmed))
	q.Set("limit", lookupLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bookings/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID.String())
	if auth.Enabled() {
		token, err := auth.GenerateToken(serviceUserID, tenantID.String(), serviceRole, "", tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("booking service returned %d", resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	return body.Bookings, nil
}
