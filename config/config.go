// Package config handles loading and validation of application configuration
// from environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vinetrail/vinetrail-backend/logger"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	// Validation constants
	minJWTLength = 32
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
	// AdminJWTSecret signs the HS256 bearer tokens accepted on /v1/admin.
	AdminJWTSecret string `mapstructure:"ADMIN_JWT_SECRET" yaml:"admin_jwt_secret"`
	// PublicBaseURL is the customer-facing site; proposal links are built from it.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL" yaml:"public_base_url"`
	// TrustedProxies is a list of CIDR ranges or IPs of trusted reverse proxies.
	// If empty, X-Forwarded-For headers are ignored entirely.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
}

// DatabaseConfig holds PostgreSQL database connection details.
type DatabaseConfig struct {
	Host         string `mapstructure:"HOST" yaml:"host"`
	Port         int    `mapstructure:"PORT" yaml:"port"`
	User         string `mapstructure:"USER" yaml:"user"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	Name         string `mapstructure:"NAME" yaml:"name"`
	SSLMode      string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"MAX_IDLE_CONNS" yaml:"max_idle_conns"`
	ConnMaxLife  string `mapstructure:"CONN_MAX_LIFE" yaml:"conn_max_life"`
}

// URL returns a postgres:// connection URL suitable for golang-migrate and other
// URL-based database tools.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// EmailConfig holds configuration for sending emails.
type EmailConfig struct {
	FromAddress  string `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName     string `mapstructure:"FROM_NAME" yaml:"from_name"`
	ResendAPIKey string `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
	// StaffAddress receives the "proposal accepted" and "deposit received" notices.
	StaffAddress string `mapstructure:"STAFF_ADDRESS" yaml:"staff_address"`
}

// LLMConfig configures the language model used by smart import.
type LLMConfig struct {
	BaseURL               string `mapstructure:"BASE_URL" yaml:"base_url"`
	APIKey                string `mapstructure:"API_KEY" yaml:"api_key"`
	Model                 string `mapstructure:"MODEL" yaml:"model"`
	MaxTokens             int    `mapstructure:"MAX_TOKENS" yaml:"max_tokens"`
	RequestTimeoutSeconds int    `mapstructure:"REQUEST_TIMEOUT_SECONDS" yaml:"request_timeout_seconds"`
}

// RequestTimeout is the per-call deadline applied to each model request.
func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PaymentsConfig holds card-payment provider keys. Brands without their own
// key fall back to StripeSecretKey.
type PaymentsConfig struct {
	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY" yaml:"stripe_secret_key"`
	// BrandKeys is "brandcode=sk_...,other=sk_...".
	BrandKeys string `mapstructure:"BRAND_KEYS" yaml:"brand_keys"`
	Currency  string `mapstructure:"CURRENCY" yaml:"currency"`

	brandKeys map[string]string
}

// KeyForBrand returns the secret key for a brand, or "" when none is configured.
func (c *PaymentsConfig) KeyForBrand(brandCode string) string {
	if key, ok := c.brandKeys[strings.ToLower(brandCode)]; ok {
		return key
	}
	return c.StripeSecretKey
}

// SmartImportConfig bounds the smart-import upload.
type SmartImportConfig struct {
	Enabled             bool    `mapstructure:"ENABLED" yaml:"enabled"`
	MaxFiles            int     `mapstructure:"MAX_FILES" yaml:"max_files"`
	MaxFileSizeBytes    int64   `mapstructure:"MAX_FILE_SIZE_BYTES" yaml:"max_file_size_bytes"`
	MinPDFTextLength    int     `mapstructure:"MIN_PDF_TEXT_LENGTH" yaml:"min_pdf_text_length"`
	VenueMatchThreshold float64 `mapstructure:"VENUE_MATCH_THRESHOLD" yaml:"venue_match_threshold"`
}

// StorageConfig selects where uploaded import documents are archived.
type StorageConfig struct {
	// Driver is one of none, local or s3.
	Driver          string `mapstructure:"DRIVER" yaml:"driver"`
	LocalPath       string `mapstructure:"LOCAL_PATH" yaml:"local_path"`
	Bucket          string `mapstructure:"BUCKET" yaml:"bucket"`
	Region          string `mapstructure:"REGION" yaml:"region"`
	Endpoint        string `mapstructure:"ENDPOINT" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY" yaml:"secret_access_key"`
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Maximum requests per window for the public proposal endpoints, per client IP
	PublicRequestsPerMinute int `mapstructure:"PUBLIC_REQUESTS_PER_MINUTE" yaml:"public_requests_per_minute"`
	// Maximum smart-import requests per window, per staff member
	ImportRequestsPerMinute int `mapstructure:"IMPORT_REQUESTS_PER_MINUTE" yaml:"import_requests_per_minute"`
	// Window duration in seconds for rate limiting
	WindowSeconds int `mapstructure:"WINDOW_SECONDS" yaml:"window_seconds"`
}

// WorkerPoolConfig holds configuration for the notification worker pool.
type WorkerPoolConfig struct {
	// MaxWorkers is the number of concurrent workers (default: 4)
	MaxWorkers int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	// QueueSize is the maximum number of pending jobs (default: 256)
	QueueSize int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	// ShutdownTimeoutSeconds is the max time to wait for workers during shutdown (default: 30)
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server      ServerConfig      `mapstructure:"SERVER" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"DATABASE" yaml:"database"`
	Redis       RedisConfig       `mapstructure:"REDIS" yaml:"redis"`
	Email       EmailConfig       `mapstructure:"EMAIL" yaml:"email"`
	LLM         LLMConfig         `mapstructure:"LLM" yaml:"llm"`
	Payments    PaymentsConfig    `mapstructure:"PAYMENTS" yaml:"payments"`
	SmartImport SmartImportConfig `mapstructure:"SMART_IMPORT" yaml:"smart_import"`
	Storage     StorageConfig     `mapstructure:"STORAGE" yaml:"storage"`
	RateLimit   RateLimitConfig   `mapstructure:"RATE_LIMIT" yaml:"rate_limit"`
	WorkerPool  WorkerPoolConfig  `mapstructure:"WORKER_POOL" yaml:"worker_pool"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{})
	v.SetDefault("SERVER.PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "vinetrail_dev")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE.MAX_IDLE_CONNS", 2)
	v.SetDefault("DATABASE.CONN_MAX_LIFE", "1h")
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 5)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("EMAIL.FROM_NAME", "Vinetrail Tours")
	v.SetDefault("LLM.BASE_URL", "https://api.anthropic.com")
	v.SetDefault("LLM.MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("LLM.MAX_TOKENS", 8192)
	v.SetDefault("LLM.REQUEST_TIMEOUT_SECONDS", 90)
	v.SetDefault("PAYMENTS.CURRENCY", "usd")
	v.SetDefault("SMART_IMPORT.ENABLED", true)
	v.SetDefault("SMART_IMPORT.MAX_FILES", 10)
	v.SetDefault("SMART_IMPORT.MAX_FILE_SIZE_BYTES", 10<<20)
	v.SetDefault("SMART_IMPORT.MIN_PDF_TEXT_LENGTH", 50)
	v.SetDefault("SMART_IMPORT.VENUE_MATCH_THRESHOLD", 0.6)
	v.SetDefault("STORAGE.DRIVER", "none")
	v.SetDefault("STORAGE.LOCAL_PATH", "./uploads/imports")
	v.SetDefault("STORAGE.REGION", "auto")
	v.SetDefault("RATE_LIMIT.PUBLIC_REQUESTS_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT.IMPORT_REQUESTS_PER_MINUTE", 5)
	v.SetDefault("RATE_LIMIT.WINDOW_SECONDS", 60)
	v.SetDefault("WORKER_POOL.MAX_WORKERS", 4)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 256)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 30)
}

var envBindings = [][2]string{
	// Server config
	{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
	{"SERVER.PORT", "PORT"},
	{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
	{"SERVER.VERSION", "VERSION"},
	{"SERVER.ADMIN_JWT_SECRET", "ADMIN_JWT_SECRET"},
	{"SERVER.PUBLIC_BASE_URL", "PUBLIC_BASE_URL"},
	{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
	// Database config
	{"DATABASE.HOST", "DB_HOST"},
	{"DATABASE.PORT", "DB_PORT"},
	{"DATABASE.USER", "DB_USER"},
	{"DATABASE.PASSWORD", "DB_PASSWORD"},
	{"DATABASE.NAME", "DB_NAME"},
	{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
	{"DATABASE.MAX_OPEN_CONNS", "DB_MAX_OPEN_CONNS"},
	// Redis config
	{"REDIS.ADDRESS", "REDIS_ADDRESS"},
	{"REDIS.PASSWORD", "REDIS_PASSWORD"},
	{"REDIS.DB", "REDIS_DB"},
	{"REDIS.USE_TLS", "REDIS_USE_TLS"},
	// Email config
	{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS"},
	{"EMAIL.FROM_NAME", "EMAIL_FROM_NAME"},
	{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
	{"EMAIL.STAFF_ADDRESS", "EMAIL_STAFF_ADDRESS"},
	// Language model
	{"LLM.BASE_URL", "LLM_BASE_URL"},
	{"LLM.API_KEY", "ANTHROPIC_API_KEY"},
	{"LLM.MODEL", "LLM_MODEL"},
	{"LLM.MAX_TOKENS", "LLM_MAX_TOKENS"},
	{"LLM.REQUEST_TIMEOUT_SECONDS", "LLM_REQUEST_TIMEOUT_SECONDS"},
	// Payments
	{"PAYMENTS.STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY"},
	{"PAYMENTS.BRAND_KEYS", "STRIPE_BRAND_KEYS"},
	{"PAYMENTS.CURRENCY", "PAYMENTS_CURRENCY"},
	// Smart import
	{"SMART_IMPORT.ENABLED", "SMART_IMPORT_ENABLED"},
	{"SMART_IMPORT.MAX_FILES", "SMART_IMPORT_MAX_FILES"},
	{"SMART_IMPORT.MAX_FILE_SIZE_BYTES", "SMART_IMPORT_MAX_FILE_SIZE_BYTES"},
	{"SMART_IMPORT.MIN_PDF_TEXT_LENGTH", "SMART_IMPORT_MIN_PDF_TEXT_LENGTH"},
	{"SMART_IMPORT.VENUE_MATCH_THRESHOLD", "SMART_IMPORT_VENUE_MATCH_THRESHOLD"},
	// Storage
	{"STORAGE.DRIVER", "STORAGE_DRIVER"},
	{"STORAGE.LOCAL_PATH", "STORAGE_LOCAL_PATH"},
	{"STORAGE.BUCKET", "STORAGE_BUCKET"},
	{"STORAGE.REGION", "STORAGE_REGION"},
	{"STORAGE.ENDPOINT", "STORAGE_ENDPOINT"},
	{"STORAGE.ACCESS_KEY_ID", "STORAGE_ACCESS_KEY_ID"},
	{"STORAGE.SECRET_ACCESS_KEY", "STORAGE_SECRET_ACCESS_KEY"},
	// Rate limit config
	{"RATE_LIMIT.PUBLIC_REQUESTS_PER_MINUTE", "RATE_LIMIT_PUBLIC_REQUESTS_PER_MINUTE"},
	{"RATE_LIMIT.IMPORT_REQUESTS_PER_MINUTE", "RATE_LIMIT_IMPORT_REQUESTS_PER_MINUTE"},
	{"RATE_LIMIT.WINDOW_SECONDS", "RATE_LIMIT_WINDOW_SECONDS"},
	// WorkerPool config
	{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
	{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
	{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	log.Infow("Configuration loaded",
		"environment", v.GetString("SERVER.ENVIRONMENT"),
		"server_port", v.GetString("SERVER.PORT"),
		"db_host", v.GetString("DATABASE.HOST"),
		"allowed_origins", v.GetStringSlice("SERVER.ALLOWED_ORIGINS"),
		"llm_model", v.GetString("LLM.MODEL"),
		"storage_driver", v.GetString("STORAGE.DRIVER"),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if len(cfg.Server.AdminJWTSecret) < minJWTLength {
		return fmt.Errorf("admin JWT secret must be at least %d characters long", minJWTLength)
	}
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}
	if _, err := url.ParseRequestURI(cfg.Server.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid public base URL: %w", err)
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if cfg.Database.Password == "" {
		log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if cfg.Email.FromAddress == "" {
		return fmt.Errorf("email from address is required")
	}
	if cfg.Email.ResendAPIKey == "" {
		log.Warn("Resend API key not set, notification emails will be logged and skipped")
	}

	if err := validateSmartImport(&cfg.SmartImport, &cfg.LLM, log); err != nil {
		return err
	}

	keys, err := parseBrandKeys(cfg.Payments.BrandKeys)
	if err != nil {
		return err
	}
	cfg.Payments.brandKeys = keys
	if cfg.Payments.StripeSecretKey == "" && len(keys) == 0 {
		log.Warn("No payment provider keys configured, deposit payments are disabled")
	}

	switch cfg.Storage.Driver {
	case "none", "":
	case "local":
		if cfg.Storage.LocalPath == "" {
			return fmt.Errorf("storage local path is required for the local driver")
		}
	case "s3":
		if cfg.Storage.Bucket == "" || cfg.Storage.AccessKeyID == "" || cfg.Storage.SecretAccessKey == "" {
			return fmt.Errorf("storage bucket and credentials are required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.RateLimit.PublicRequestsPerMinute <= 0 || cfg.RateLimit.ImportRequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit requests per minute must be positive")
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit window seconds must be positive")
	}

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool max workers must be positive")
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker pool queue size must be positive")
	}
	if cfg.WorkerPool.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool shutdown timeout must be positive")
	}

	return nil
}

// validateSmartImport checks the import limits. If the import is enabled but
// no model key is present it auto-disables the feature with a warning.
func validateSmartImport(si *SmartImportConfig, llm *LLMConfig, log *zap.SugaredLogger) error {
	if !si.Enabled {
		return nil
	}
	if llm.APIKey == "" {
		log.Warn("Language model API key not set, auto-disabling smart import")
		si.Enabled = false
		return nil
	}
	if _, err := url.ParseRequestURI(llm.BaseURL); err != nil {
		return fmt.Errorf("invalid language model base URL: %w", err)
	}
	if llm.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("language model request timeout must be positive")
	}
	if si.MaxFiles <= 0 || si.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("smart import file limits must be positive")
	}
	if si.VenueMatchThreshold <= 0 || si.VenueMatchThreshold > 1 {
		return fmt.Errorf("venue match threshold must be in (0, 1]")
	}
	return nil
}

// parseBrandKeys reads "code=key,code2=key2". Codes are case-insensitive.
func parseBrandKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, key, ok := strings.Cut(pair, "=")
		code, key = strings.TrimSpace(code), strings.TrimSpace(key)
		if !ok || code == "" || key == "" {
			return nil, fmt.Errorf("invalid brand payment key entry %q", pair)
		}
		keys[strings.ToLower(code)] = key
	}
	return keys, nil
}

// containsWildcard checks if the list of allowed origins contains the wildcard "*".
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
