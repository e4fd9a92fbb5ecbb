package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"reservation-platform/shared/config"
	"reservation-platform/shared/models"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	UserAgent       = "Booking-System-Webhook/1.0"

	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 8
	maxErrorBody       = 512
)

var ErrInsecureURL = errors.New("webhook url must use https, or http on a loopback host")

var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// ValidateURL accepts https URLs, and plain http only for loopback hosts.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInsecureURL, raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if loopbackHosts[strings.ToLower(u.Hostname())] {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInsecureURL, raw)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type Store interface {
	ActiveForEvent(ctx context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error)
	RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Dispatcher fans one event out to every matching subscription of a
// tenant. Each delivery succeeds or fails on its own.
type Dispatcher struct {
	store       Store
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	tracer      trace.Tracer
	now         func() time.Time
}

func NewDispatcher(store Store, cfg config.WebhookConfig) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = concurrency
	}

	return &Dispatcher{
		store:       store,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		concurrency: concurrency,
		tracer:      otel.Tracer("reservation-platform/webhooks"),
		now:         time.Now,
	}
}

// Dispatch delivers event to the tenant's subscriptions and records one
// delivery row per subscription. Only a failure to list subscriptions is
// returned; delivery failures are recorded and logged.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, event string, data interface{}) ([]models.WebhookDelivery, error) {
	hooks, err := d.store.ActiveForEvent(ctx, tenantID, event)
	if err != nil {
		return nil, err
	}
	if len(hooks) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode webhook body: %w", err)
	}

	results := make([]models.WebhookDelivery, len(hooks))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, hook := range hooks {
		i, hook := i, hook
		g.Go(func() error {
			results[i] = d.deliver(ctx, hook, event, body)
			return nil
		})
	}
	// Deliveries report failures in their rows, never through the group.
	g.Wait()

	for i := range results {
		if err := d.store.RecordDelivery(ctx, &results[i]); err != nil {
			logrus.WithError(err).WithField("webhook_id", results[i].WebhookID).Warn("Failed to record webhook delivery")
		}
	}
	return results, nil
}

func (d *Dispatcher) deliver(ctx context.Context, hook models.Webhook, event string, body []byte) models.WebhookDelivery {
	ctx, span := d.tracer.Start(ctx, "webhooks.deliver "+event,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("webhook.id", hook.ID.String()),
			attribute.String("tenant.id", hook.TenantID.String()),
		))
	defer span.End()

	result := models.WebhookDelivery{
		WebhookID: hook.ID,
		TenantID:  hook.TenantID,
		Event:     event,
	}

	status, err := d.send(ctx, hook, body)
	result.StatusCode = status
	result.DeliveredAt = d.now()

	log := logrus.WithFields(logrus.Fields{
		"webhook_id": hook.ID,
		"tenant_id":  hook.TenantID,
		"event_type": event,
	})
	if err != nil {
		msg := err.Error()
		result.Error = &msg
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		log.WithError(err).Warn("Webhook delivery failed")
		return result
	}

	result.Success = true
	span.SetAttributes(attribute.Int("http.status_code", status))
	log.Debug("Webhook delivered")
	return result
}

func (d *Dispatcher) send(ctx context.Context, hook models.Webhook, body []byte) (int, error) {
	if err := ValidateURL(hook.URL); err != nil {
		return 0, err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if hook.Secret != nil && *hook.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(body, *hook.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
