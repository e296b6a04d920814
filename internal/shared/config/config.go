package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var (
	// ErrMissingCredentials means a required payment gateway setting is absent.
	ErrMissingCredentials = errors.New("payment gateway credentials missing")
	// ErrInvalidPaymentConfig means payment settings are present but unusable.
	ErrInvalidPaymentConfig = errors.New("invalid payment gateway configuration")
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Calendar  CalendarConfig
	Kafka     KafkaConfig
	Email     EmailConfig
	Tracing   TracingConfig

	// Payment is nil when PaymentErr is set; the payment path is then disabled
	// while availability and calendar sync keep running.
	Payment    *PaymentConfig
	PaymentErr error

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string

	AutoMigrate        bool
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	SlowQueryThreshold time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// Required makes an unreachable Redis fatal at startup.
	Required     bool
	FeedCacheTTL time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	JWTExpiresIn     time.Duration
	RefreshExpiresIn time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	AuthRequests     int           `json:"auth_requests"`
	PaymentRequests  int           `json:"payment_requests"`
	CallbackRequests int           `json:"callback_requests"`
	AdminRequests    int           `json:"admin_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// CalendarConfig controls external calendar synchronisation and export.
type CalendarConfig struct {
	SyncEnabled   bool
	SyncInterval  time.Duration
	FetchTimeout  time.Duration
	Workers       int
	MaxFeedBytes  int64
	ExportUIDHost string
	ExportProdID  string
	SyncOnStartup bool
}

// KafkaConfig holds broker settings for payment events.
type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	PaymentEventsTopic string
	ConsumerGroupID    string
	ConsumerWorkers    int
}

// EmailConfig holds email configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
}

// PaymentConfig is the card gateway configuration. It is parsed once at
// startup and handed to the payments package by pointer.
type PaymentConfig struct {
	GatewayURL      string `envconfig:"GATEWAY_URL" required:"true"`
	TerminalID      string `envconfig:"TERMINAL_ID" required:"true"`
	PosAuthCode     string `envconfig:"POS_AUTH_CODE" required:"true"`
	CallbackURL     string `envconfig:"CALLBACK_URL" required:"true"`
	CurrencyCode    string `envconfig:"CURRENCY_CODE" default:"978"`
	TransactionType string `envconfig:"TRANSACTION_TYPE" default:"1"`
	ThreeDSecure    bool   `envconfig:"THREE_D_SECURE" default:"true"`
	Language        string `envconfig:"LANGUAGE" default:"PT"`
	EntityCode      string `envconfig:"ENTITY_CODE"`

	ApprovedResponseCode       string        `envconfig:"APPROVED_RESPONSE_CODE" default:"000"`
	RequireCallbackFingerprint bool          `envconfig:"REQUIRE_CALLBACK_FINGERPRINT" default:"false"`
	LockTimeout                time.Duration `envconfig:"LOCK_TIMEOUT" default:"3s"`
	SnowflakeNode              int64         `envconfig:"SNOWFLAKE_NODE" default:"1"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "lodging_db"),
			User:     getEnv("DB_USER", "lodging_user"),
			Password: getEnv("DB_PASSWORD", "lodging_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			AutoMigrate:        getBoolEnv("DB_AUTO_MIGRATE", true),
			MaxOpenConns:       getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:    getDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			SlowQueryThreshold: getDurationEnv("DB_SLOW_QUERY_THRESHOLD", 500*time.Millisecond),
		},

		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			Required:     getBoolEnv("REDIS_REQUIRED", false),
			FeedCacheTTL: getDurationEnv("REDIS_FEED_CACHE_TTL", 2*time.Minute),
		},

		JWT: JWTConfig{
			Secret:           getEnv("JWT_SECRET", "change-me-in-production"),
			JWTExpiresIn:     getDurationEnvSeconds("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getDurationEnvSeconds("JWT_REFRESH_EXPIRES_IN", 24*time.Hour),
		},

		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 120),
			AuthRequests:     getIntEnv("RATE_LIMIT_AUTH_REQUESTS", 10),
			PaymentRequests:  getIntEnv("RATE_LIMIT_PAYMENT_REQUESTS", 10),
			CallbackRequests: getIntEnv("RATE_LIMIT_CALLBACK_REQUESTS", 300),
			AdminRequests:    getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 600),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Calendar: CalendarConfig{
			SyncEnabled:   getBoolEnv("CALENDAR_SYNC_ENABLED", true),
			SyncInterval:  getDurationEnv("CALENDAR_SYNC_INTERVAL", 15*time.Minute),
			FetchTimeout:  getDurationEnv("CALENDAR_FETCH_TIMEOUT", 15*time.Second),
			Workers:       getIntEnv("CALENDAR_SYNC_WORKERS", 4),
			MaxFeedBytes:  getInt64Env("CALENDAR_MAX_FEED_BYTES", 5*1024*1024),
			ExportUIDHost: getEnv("EXPORT_UID_DOMAIN", "reservas.local"),
			ExportProdID:  getEnv("EXPORT_PRODID", "-//lodging//reservations//PT"),
			SyncOnStartup: getBoolEnv("CALENDAR_SYNC_ON_STARTUP", true),
		},

		Kafka: KafkaConfig{
			Enabled:            getBoolEnv("KAFKA_ENABLED", false),
			Brokers:            getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			PaymentEventsTopic: getEnv("KAFKA_PAYMENT_EVENTS_TOPIC", "payment-events"),
			ConsumerGroupID:    getEnv("KAFKA_CONSUMER_GROUP_ID", "lodging-notification-workers"),
			ConsumerWorkers:    getIntEnv("KAFKA_CONSUMER_WORKERS", 2),
		},

		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "reservas@example.com"),
			FromName:     getEnv("SMTP_FROM_NAME", "Reservas"),
		},

		Tracing: TracingConfig{
			Enabled:     getBoolEnv("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "lodging-backend"),
			Environment: getEnv("ENV", "dev"),
		},

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port
	cfg.Payment, cfg.PaymentErr = LoadPayment()

	return cfg
}

// LoadPayment reads PAYMENT_* variables. Any missing credential is reported
// as ErrMissingCredentials; the caller decides whether that is fatal.
func LoadPayment() (*PaymentConfig, error) {
	var p PaymentConfig
	if err := envconfig.Process("PAYMENT", &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the rules the gateway imposes on our own settings.
func (p *PaymentConfig) Validate() error {
	if strings.TrimSpace(p.PosAuthCode) == "" || strings.TrimSpace(p.TerminalID) == "" {
		return ErrMissingCredentials
	}
	gw, err := url.Parse(p.GatewayURL)
	if err != nil || gw.Scheme == "" || gw.Host == "" {
		return fmt.Errorf("%w: gateway url must be absolute", ErrInvalidPaymentConfig)
	}
	cb, err := url.Parse(p.CallbackURL)
	if err != nil || cb.Scheme == "" || cb.Host == "" {
		return fmt.Errorf("%w: callback url must be absolute", ErrInvalidPaymentConfig)
	}
	// The gateway appends its own query string to the callback.
	if cb.RawQuery != "" || cb.ForceQuery {
		return fmt.Errorf("%w: callback url must not carry query parameters", ErrInvalidPaymentConfig)
	}
	switch p.TransactionType {
	case "1":
	case "2", "3":
		if strings.TrimSpace(p.EntityCode) == "" {
			return fmt.Errorf("%w: entity code required for transaction type %s", ErrInvalidPaymentConfig, p.TransactionType)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidPaymentConfig, p.TransactionType)
	}
	if _, err := strconv.Atoi(strings.TrimSpace(p.CurrencyCode)); err != nil {
		return fmt.Errorf("%w: currency code must be numeric", ErrInvalidPaymentConfig)
	}
	return nil
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getInt64Env gets an int64 environment variable with a fallback value
func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// PaymentsEnabled reports whether the payment path can be served.
func (c *Config) PaymentsEnabled() bool {
	return c.Payment != nil && c.PaymentErr == nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
