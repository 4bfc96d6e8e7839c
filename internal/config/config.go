package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Auth      AuthConfig
	Store     StoreConfig
	Cache     CacheConfig
	Checkout  CheckoutConfig
	Catalog   CatalogConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	// AllowedOrigins lists browser origins allowed by CORS. Empty allows any
	// origin without credentials.
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"aiaxstock"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// AuthConfig holds the identifier allow-lists used by the login gate.
type AuthConfig struct {
	OwnerIDs   []string      `envconfig:"AUTH_OWNER_IDS"`
	AdminIDs   []string      `envconfig:"AUTH_ADMIN_IDS"`
	SessionTTL time.Duration `envconfig:"AUTH_SESSION_TTL" default:"12h"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // rest, sqlite, postgres, mysql, mongodb

	// Hosted REST store
	URL     string        `envconfig:"STORE_URL"`
	Key     string        `envconfig:"STORE_KEY"`
	Timeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	// SQLite
	Path string `envconfig:"STORE_PATH" default:"./data/aiaxstock.db"`

	// PostgreSQL / MySQL
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"0"`
	Name     string `envconfig:"STORE_DB_NAME" default:"aiaxstock"`
	User     string `envconfig:"STORE_DB_USER" default:"postgres"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`

	// MongoDB
	MongoURI      string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"aiaxstock"`
}

// CacheConfig holds cache settings. The cache backs catalog lookups and sessions.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"aiaxstock:"`
}

// CheckoutConfig tunes the checkout workflow.
type CheckoutConfig struct {
	Atomic        bool          `envconfig:"CHECKOUT_ATOMIC" default:"true"`
	MaxAttempts   int           `envconfig:"CHECKOUT_MAX_ATTEMPTS" default:"3"`
	PurgeInterval time.Duration `envconfig:"PURGE_INTERVAL" default:"0s"`
}

// CatalogConfig tunes catalog loading.
type CatalogConfig struct {
	Timeout time.Duration `envconfig:"CATALOG_TIMEOUT" default:"4s"`
	// Products overrides the static fallback, as "key:label" pairs.
	Products []string `envconfig:"CATALOG_PRODUCTS"`
}

// TelemetryConfig configures OpenTelemetry tracing. Empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"aiaxstock"`
}

// RateLimitConfig throttles the login endpoint per client IP.
type RateLimitConfig struct {
	LoginPerMinute int `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10"`
	LoginBurst     int `envconfig:"LOGIN_RATE_BURST" default:"5"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		s.User, s.Password, s.Host, port, s.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate reports configuration that makes the service unusable.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Store.Type) {
	case "rest":
		if c.Store.URL == "" || c.Store.Key == "" {
			errs = append(errs, errors.New("STORE_URL and STORE_KEY are required for the rest store"))
		}
	case "mongodb", "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongodb store"))
		}
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_TYPE %q", c.Store.Type))
	}

	if len(c.Auth.OwnerIDs) == 0 {
		errs = append(errs, errors.New("AUTH_OWNER_IDS must list at least one owner identifier"))
	}
	if c.Checkout.MaxAttempts < 1 {
		errs = append(errs, errors.New("CHECKOUT_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
