package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`

	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Services ServiceConfig  `mapstructure:"services"`
	Security SecurityConfig `mapstructure:"security"`
	Events   EventsConfig   `mapstructure:"events"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Webhooks WebhookConfig  `mapstructure:"webhooks"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

type RedisConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	// Empty secret disables bearer-token checks on the HTTP surface.
	Secret string `mapstructure:"secret"`
}

type ServiceConfig struct {
	BookingHTTP      int `mapstructure:"booking_http"`
	BookingGRPC      int `mapstructure:"booking_grpc"`
	ResourceHTTP     int `mapstructure:"resource_http"`
	ResourceGRPC     int `mapstructure:"resource_grpc"`
	NotificationHTTP int `mapstructure:"notification_http"`
	NotificationGRPC int `mapstructure:"notification_grpc"`

	TenantServiceURL  string        `mapstructure:"tenant_url"`
	BookingServiceURL string        `mapstructure:"booking_url"`
	LookupTimeout     time.Duration `mapstructure:"lookup_timeout"`
}

type SecurityConfig struct {
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type EventsConfig struct {
	BookingStream   string        `mapstructure:"booking_stream"`
	DeletionStream  string        `mapstructure:"deletion_stream"`
	ConsumerName    string        `mapstructure:"consumer_name"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	BatchSize       int64         `mapstructure:"batch_size"`
	PendingInterval time.Duration `mapstructure:"pending_interval"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	PublishBuffer   int           `mapstructure:"publish_buffer"`
	MaxLen          int64         `mapstructure:"max_len"`
}

type CacheConfig struct {
	SettingsTTL     time.Duration `mapstructure:"settings_ttl"`
	AvailabilityTTL time.Duration `mapstructure:"availability_ttl"`
}

// DefaultsConfig holds the organization policy used when a tenant's own
// settings cannot be fetched.
type DefaultsConfig struct {
	Timezone           string `mapstructure:"timezone"`
	WorkingHoursStart  string `mapstructure:"working_hours_start"`
	WorkingHoursEnd    string `mapstructure:"working_hours_end"`
	BookingInterval    int    `mapstructure:"booking_interval"`
	AdvanceBookingDays int    `mapstructure:"advance_booking_days"`
	CancellationHours  int    `mapstructure:"cancellation_hours"`
}

type WebhookConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	Burst       int           `mapstructure:"burst"`
	Concurrency int           `mapstructure:"concurrency"`
}

type TracingConfig struct {
	// Empty endpoint keeps the no-op tracer provider.
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type binding struct {
	key   string
	env   string
	value interface{}
}

var bindings = []binding{
	{"environment", "ENVIRONMENT", "development"},

	{"logging.level", "LOG_LEVEL", "info"},
	{"logging.format", "LOG_FORMAT", "json"},

	{"database.host", "DB_HOST", "localhost"},
	{"database.port", "DB_PORT", 5432},
	{"database.name", "DB_NAME", "reservations"},
	{"database.user", "DB_USER", "reservations"},
	{"database.password", "DB_PASSWORD", ""},
	{"database.sslmode", "DB_SSLMODE", "disable"},
	{"database.max_connections", "DB_MAX_CONNECTIONS", 50},
	{"database.max_idle", "DB_MAX_IDLE", 10},

	{"redis.host", "REDIS_HOST", "localhost"},
	{"redis.port", "REDIS_PORT", 6379},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},
	{"redis.max_connections", "REDIS_MAX_CONNECTIONS", 50},

	{"jwt.secret", "JWT_SECRET", ""},

	{"services.booking_http", "BOOKING_SERVICE_PORT", 8082},
	{"services.booking_grpc", "BOOKING_SERVICE_GRPC_PORT", 50052},
	{"services.resource_http", "RESOURCE_SERVICE_PORT", 8086},
	{"services.resource_grpc", "RESOURCE_SERVICE_GRPC_PORT", 50056},
	{"services.notification_http", "NOTIFICATION_SERVICE_PORT", 8083},
	{"services.notification_grpc", "NOTIFICATION_SERVICE_GRPC_PORT", 50053},
	{"services.tenant_url", "TENANT_SERVICE_URL", "http://localhost:8081"},
	{"services.booking_url", "BOOKING_SERVICE_URL", "http://localhost:8082"},
	{"services.lookup_timeout", "SERVICE_LOOKUP_TIMEOUT", 2 * time.Second},

	{"security.rate_limit_requests", "RATE_LIMIT_REQUESTS", 100},
	{"security.rate_limit_window", "RATE_LIMIT_WINDOW", time.Minute},

	{"events.booking_stream", "EVENTS_BOOKING_STREAM", "booking-events"},
	{"events.deletion_stream", "EVENTS_DELETION_STREAM", "deletion-events"},
	{"events.consumer_name", "EVENTS_CONSUMER_NAME", ""},
	{"events.block_timeout", "EVENTS_BLOCK_TIMEOUT", 5 * time.Second},
	{"events.batch_size", "EVENTS_BATCH_SIZE", 10},
	{"events.pending_interval", "EVENTS_PENDING_INTERVAL", 30 * time.Second},
	{"events.stop_timeout", "EVENTS_STOP_TIMEOUT", 10 * time.Second},
	{"events.publish_buffer", "EVENTS_PUBLISH_BUFFER", 256},
	{"events.max_len", "EVENTS_MAX_LEN", 1000},

	{"cache.settings_ttl", "SETTINGS_CACHE_TTL", 300 * time.Second},
	{"cache.availability_ttl", "AVAILABILITY_CACHE_TTL", 300 * time.Second},

	{"defaults.timezone", "DEFAULT_TIMEZONE", "UTC"},
	{"defaults.working_hours_start", "DEFAULT_WORKING_HOURS_START", "08:00"},
	{"defaults.working_hours_end", "DEFAULT_WORKING_HOURS_END", "18:00"},
	{"defaults.booking_interval", "DEFAULT_BOOKING_INTERVAL", 30},
	{"defaults.advance_booking_days", "DEFAULT_ADVANCE_BOOKING_DAYS", 30},
	{"defaults.cancellation_hours", "DEFAULT_CANCELLATION_HOURS", 24},

	{"webhooks.timeout", "WEBHOOK_TIMEOUT", 10 * time.Second},
	{"webhooks.rate_per_sec", "WEBHOOK_RATE_PER_SEC", 20.0},
	{"webhooks.burst", "WEBHOOK_BURST", 10},
	{"webhooks.concurrency", "WEBHOOK_CONCURRENCY", 4},

	{"tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", ""},
	{"tracing.insecure", "OTEL_EXPORTER_OTLP_INSECURE", true},
}

// Load reads .env (if present), an optional config.yaml and the process
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, b := range bindings {
		v.SetDefault(b.key, b.value)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b.env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
