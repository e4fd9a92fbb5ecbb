package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/cache"
	"reservation-platform/shared/config"
)

// Resolver produces the policy of a tenant. Implementations never fail;
// they degrade to defaults instead.
type Resolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) Settings
}

// StaticResolver returns the same settings for every tenant.
type StaticResolver Settings

func (r StaticResolver) Resolve(context.Context, uuid.UUID) Settings {
	return Settings(r)
}

type settingsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RemoteResolver asks the tenant service for a tenant's settings and keeps
// successful answers in the cache.
type RemoteResolver struct {
	baseURL  string
	client   *http.Client
	cache    settingsCache
	ttl      time.Duration
	defaults Settings
}

func NewRemoteResolver(cfg *config.Config, c *cache.Cache) *RemoteResolver {
	r := &RemoteResolver{
		baseURL:  strings.TrimRight(cfg.Services.TenantServiceURL, "/"),
		client:   &http.Client{Timeout: cfg.Services.LookupTimeout},
		ttl:      cfg.Cache.SettingsTTL,
		defaults: Defaults(cfg.Defaults),
	}
	if c != nil {
		r.cache = c
	}
	return r
}

func (r *RemoteResolver) Resolve(ctx context.Context, tenantID uuid.UUID) Settings {
	log := logrus.WithField("tenant_id", tenantID)
	key := cache.SettingsKey(tenantID)

	if r.cache != nil {
		var cached Settings
		found, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			log.WithError(err).Debug("Settings cache read failed")
		} else if found && cached.Validate() == nil {
			return cached
		}
	}

	if r.baseURL == "" {
		return r.defaults
	}

	settings, err := r.fetch(ctx, tenantID)
	if err != nil {
		log.WithError(err).Warn("Tenant settings unavailable, using defaults")
		return r.defaults
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, settings, r.ttl); err != nil {
			log.WithError(err).Debug("Settings cache write failed")
		}
	}
	return settings
}

func (r *RemoteResolver) fetch(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	url := fmt.Sprintf("%s/tenants/%s/settings", r.baseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Settings{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Settings{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Settings{}, fmt.Errorf("tenant service returned %d", resp.StatusCode)
	}

	// Fields missing from the response keep their default values.
	settings := r.defaults
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return Settings{}, fmt.Errorf("decode tenant settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
