// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret     = "your-secret-key-change-in-production"
	defaultCredentialKey = "credential-key-change-in-production"
)

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Cache       CacheConfig
	AWS         AWSConfig
	Sync        SyncConfig
	Security    SecurityConfig
	I18n        I18nConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	AllowedOrigins []string
	// per client IP
	RateLimitRPS     float64
	RateLimitBurst   int
	SyncTriggerBurst int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// CacheConfig selects the backend of the priority-rank cache.
type CacheConfig struct {
	Type        string // "memory" or "redis"
	PriorityTTL time.Duration
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

// SyncConfig tunes vendor sync passes and the outbound request queue.
type SyncConfig struct {
	QueueConcurrency int
	StaleAfter       time.Duration
	FetchAttempts    int
	BackoffBase      time.Duration
	HTTPTimeout      time.Duration
	PageSize         int
	MaxPages         int
	RequestsPerSec   float64
	MirrorImages     bool
}

type SecurityConfig struct {
	CredentialKey string
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:             getEnv("SERVER_PORT", "8080"),
			Host:             getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:      getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:     getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:      getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins:   getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitRPS:     getEnvAsFloat("SERVER_RATE_LIMIT_RPS", 10),
			RateLimitBurst:   getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			SyncTriggerBurst: getEnvAsInt("SERVER_SYNC_TRIGGER_BURST", 3),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "catalog"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", defaultJWTSecret),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Type:        getEnv("CACHE_TYPE", "memory"),
			PriorityTTL: getEnvAsDuration("CACHE_PRIORITY_TTL", 5*time.Minute),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "catalog-product-images"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Sync: SyncConfig{
			QueueConcurrency: getEnvAsInt("SYNC_QUEUE_CONCURRENCY", 2),
			StaleAfter:       getEnvAsDuration("SYNC_STALE_AFTER", 2*time.Hour),
			FetchAttempts:    getEnvAsInt("SYNC_FETCH_ATTEMPTS", 3),
			BackoffBase:      getEnvAsDuration("SYNC_BACKOFF_BASE", 500*time.Millisecond),
			HTTPTimeout:      getEnvAsDuration("SYNC_HTTP_TIMEOUT", 60*time.Second),
			PageSize:         getEnvAsInt("SYNC_PAGE_SIZE", 500),
			MaxPages:         getEnvAsInt("SYNC_MAX_PAGES", 1000),
			RequestsPerSec:   getEnvAsFloat("SYNC_REQUESTS_PER_SEC", 5.0),
			MirrorImages:     getEnvAsBool("SYNC_MIRROR_IMAGES", false),
		},
		Security: SecurityConfig{
			CredentialKey: getEnv("CREDENTIAL_KEY", defaultCredentialKey),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == defaultJWTSecret && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Security.CredentialKey == defaultCredentialKey && c.Environment == "production" {
		return fmt.Errorf("credential encryption key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", c.Cache.Type)
	}

	if c.Sync.QueueConcurrency < 1 {
		return fmt.Errorf("sync queue concurrency must be at least 1, got: %d", c.Sync.QueueConcurrency)
	}

	if c.Sync.FetchAttempts < 1 {
		return fmt.Errorf("sync fetch attempts must be at least 1, got: %d", c.Sync.FetchAttempts)
	}

	if c.Sync.StaleAfter <= 0 {
		return fmt.Errorf("sync stale threshold must be positive")
	}

	return nil
}

// S3Enabled reports whether image mirroring has somewhere to write.
func (c *Config) S3Enabled() bool {
	return c.Sync.MirrorImages && c.AWS.AccessKeyID != "" && c.AWS.S3Bucket != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
