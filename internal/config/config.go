package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Auth       AuthConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
	Encryption EncryptionConfig
	Execution  ExecutionConfig
	Ingestion  IngestionConfig
	Storage    StorageConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig holds session token configuration.
type AuthConfig struct {
	JWTSecret            string
	JWTIssuer            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	StreamTokenDuration  time.Duration
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerSecond is the sustained per-client rate.
	RequestsPerSecond float64
	Burst             int
}

// WorkerConfig holds asynq worker configuration.
type WorkerConfig struct {
	Concurrency   int
	Queues        map[string]int
	ShutdownGrace time.Duration
}

// EncryptionConfig holds the shared secret used to protect stored
// environment variable values.
type EncryptionConfig struct {
	Secret string
}

// IsConfigured reports whether an encryption secret is set.
func (c *EncryptionConfig) IsConfigured() bool {
	return c.Secret != ""
}

// ExecutionConfig tunes the workflow execution pipeline.
type ExecutionConfig struct {
	// EngineURL is the base URL of the graph execution engine.
	EngineURL     string
	EngineTimeout time.Duration

	// MaxConcurrent caps simultaneous workflow executions per process.
	MaxConcurrent int

	// Batch processor defaults, overridable per request.
	BatchSize        int
	InterBatchDelay  time.Duration
	InterItemStagger time.Duration

	// DefaultUsageLimit applies when a user has no explicit plan limit.
	DefaultUsageLimit float64
}

// IngestionConfig tunes knowledge document processing.
type IngestionConfig struct {
	MaxFileSize int64
	// StaleAfter is how long a document may sit in processing before
	// the recovery job force-fails it.
	StaleAfter    time.Duration
	RecoveryEvery time.Duration
	FetchTimeout  time.Duration
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UsePathStyle   bool
	AssumeRoleARN  string
	SessionName    string
	PresignExpiry  time.Duration
	UploadPrefix   string
	DownloadExpiry time.Duration
}

// TelemetryConfig holds tracing configuration.
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "flowdeck"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 4<<20),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "flowdeck"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "flowdeck"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:            getEnv("AUTH_JWT_ISSUER", "flowdeck"),
			AccessTokenDuration:  getEnvDuration("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvDuration("AUTH_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			StreamTokenDuration:  getEnvDuration("AUTH_STREAM_TOKEN_DURATION", 2*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-API-Key"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 10),
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ShutdownGrace: getEnvDuration("WORKER_SHUTDOWN_GRACE", 30*time.Second),
		},
		Encryption: EncryptionConfig{
			Secret: getEnv("ENCRYPTION_SECRET", ""),
		},
		Execution: ExecutionConfig{
			EngineURL:         getEnv("EXECUTION_ENGINE_URL", "http://localhost:8090"),
			EngineTimeout:     getEnvDuration("EXECUTION_ENGINE_TIMEOUT", 5*time.Minute),
			MaxConcurrent:     getEnvInt("EXECUTION_MAX_CONCURRENT", 20),
			BatchSize:         getEnvInt("EXECUTION_BATCH_SIZE", 10),
			InterBatchDelay:   getEnvDuration("EXECUTION_INTER_BATCH_DELAY", 0),
			InterItemStagger:  getEnvDuration("EXECUTION_INTER_ITEM_STAGGER", 0),
			DefaultUsageLimit: getEnvFloat("EXECUTION_DEFAULT_USAGE_LIMIT", 0),
		},
		Ingestion: IngestionConfig{
			MaxFileSize:   getEnvInt64("INGESTION_MAX_FILE_SIZE", 50<<20),
			StaleAfter:    getEnvDuration("INGESTION_STALE_AFTER", 15*time.Minute),
			RecoveryEvery: getEnvDuration("INGESTION_RECOVERY_EVERY", 5*time.Minute),
			FetchTimeout:  getEnvDuration("INGESTION_FETCH_TIMEOUT", 2*time.Minute),
		},
		Storage: StorageConfig{
			Bucket:         getEnv("STORAGE_BUCKET", ""),
			Region:         getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:       getEnv("STORAGE_ENDPOINT", ""),
			AccessKey:      getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:      getEnv("STORAGE_SECRET_KEY", ""),
			UsePathStyle:   getEnvBool("STORAGE_USE_PATH_STYLE", false),
			AssumeRoleARN:  getEnv("STORAGE_ASSUME_ROLE_ARN", ""),
			SessionName:    getEnv("STORAGE_SESSION_NAME", "flowdeck-api"),
			PresignExpiry:  getEnvDuration("STORAGE_PRESIGN_EXPIRY", 15*time.Minute),
			UploadPrefix:   getEnv("STORAGE_UPLOAD_PREFIX", "uploads"),
			DownloadExpiry: getEnvDuration("STORAGE_DOWNLOAD_EXPIRY", time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvBool("TELEMETRY_ENABLED", false),
			ServiceName: getEnv("TELEMETRY_SERVICE_NAME", "flowdeck-api"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if c.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Execution.MaxConcurrent < 1 {
		return fmt.Errorf("execution max concurrent must be positive, got %d", c.Execution.MaxConcurrent)
	}
	if c.Execution.BatchSize < 1 {
		return fmt.Errorf("execution batch size must be positive, got %d", c.Execution.BatchSize)
	}
	return nil
}

func (c *Config) validateLog() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return nil
}

func (c *Config) validateProduction() error {
	if !c.Encryption.IsConfigured() {
		return fmt.Errorf("ENCRYPTION_SECRET is required in production")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("DB_SSLMODE must not be disable in production")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the server listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitAndTrim(value, ",")
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
