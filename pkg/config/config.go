// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Session       SessionConfig       `yaml:"session"`
	RoleCache     RoleCacheConfig     `yaml:"role_cache"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// SessionConfig selects and configures the session strategy
type SessionConfig struct {
	// Strategy is "provider" or "oidc"; exactly one path is live at runtime
	Strategy string `yaml:"strategy"`

	PublicSessionURL string        `yaml:"public_session_url"`
	AdminSessionURL  string        `yaml:"admin_session_url"`
	ProviderTimeout  time.Duration `yaml:"provider_timeout"`

	OIDCIssuerURL    string `yaml:"oidc_issuer_url"`
	OIDCClientID     string `yaml:"oidc_client_id"`
	OIDCClientSecret string `yaml:"oidc_client_secret"`
	OIDCRedirectURL  string `yaml:"oidc_redirect_url"`
	OIDCTokenCookie  string `yaml:"oidc_token_cookie"`
}

// RoleCacheConfig configures the custom role cache
type RoleCacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// AuditConfig configures the audit trail
type AuditConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`

	ArchiveEnabled bool   `yaml:"archive_enabled"`
	RetentionDays  int    `yaml:"retention_days"`
	Schedule       string `yaml:"schedule"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Load reads the optional YAML file at path (empty path skips it), applies
// environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Session: SessionConfig{
			Strategy:        "provider",
			ProviderTimeout: 10 * time.Second,
		},
		RoleCache: RoleCacheConfig{
			Backend: "memory",
			Size:    1024,
			TTL:     5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:       true,
			QueueSize:     1024,
			RetentionDays: 90,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "linkdeck",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("LINKDECK_HOST", c.Server.Host)
	c.Server.Port = getEnv("LINKDECK_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("LINKDECK_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("LINKDECK_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("LINKDECK_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("LINKDECK_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("LINKDECK_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if origins := getEnv("LINKDECK_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Database.URL = getEnv("LINKDECK_POSTGRES_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("LINKDECK_POSTGRES_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("LINKDECK_POSTGRES_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Session.Strategy = getEnv("LINKDECK_SESSION_STRATEGY", c.Session.Strategy)
	c.Session.PublicSessionURL = getEnv("LINKDECK_PUBLIC_SESSION_URL", c.Session.PublicSessionURL)
	c.Session.AdminSessionURL = getEnv("LINKDECK_ADMIN_SESSION_URL", c.Session.AdminSessionURL)
	c.Session.ProviderTimeout = getEnvDuration("LINKDECK_PROVIDER_TIMEOUT", c.Session.ProviderTimeout)
	c.Session.OIDCIssuerURL = getEnv("LINKDECK_OIDC_ISSUER_URL", c.Session.OIDCIssuerURL)
	c.Session.OIDCClientID = getEnv("LINKDECK_OIDC_CLIENT_ID", c.Session.OIDCClientID)
	c.Session.OIDCClientSecret = getEnv("LINKDECK_OIDC_CLIENT_SECRET", c.Session.OIDCClientSecret)
	c.Session.OIDCRedirectURL = getEnv("LINKDECK_OIDC_REDIRECT_URL", c.Session.OIDCRedirectURL)
	c.Session.OIDCTokenCookie = getEnv("LINKDECK_OIDC_TOKEN_COOKIE", c.Session.OIDCTokenCookie)

	c.RoleCache.Backend = getEnv("LINKDECK_ROLE_CACHE_BACKEND", c.RoleCache.Backend)
	c.RoleCache.Size = getEnvInt("LINKDECK_ROLE_CACHE_SIZE", c.RoleCache.Size)
	c.RoleCache.TTL = getEnvDuration("LINKDECK_ROLE_CACHE_TTL", c.RoleCache.TTL)
	c.RoleCache.RedisURL = getEnv("LINKDECK_REDIS_URL", c.RoleCache.RedisURL)
	c.RoleCache.RedisPassword = getEnv("LINKDECK_REDIS_PASSWORD", c.RoleCache.RedisPassword)
	c.RoleCache.RedisDB = getEnvInt("LINKDECK_REDIS_DB", c.RoleCache.RedisDB)

	c.Audit.Enabled = getEnvBool("LINKDECK_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.QueueSize = getEnvInt("LINKDECK_AUDIT_QUEUE_SIZE", c.Audit.QueueSize)
	c.Audit.ArchiveEnabled = getEnvBool("LINKDECK_AUDIT_ARCHIVE_ENABLED", c.Audit.ArchiveEnabled)
	c.Audit.RetentionDays = getEnvInt("LINKDECK_AUDIT_RETENTION_DAYS", c.Audit.RetentionDays)
	c.Audit.Schedule = getEnv("LINKDECK_AUDIT_SCHEDULE", c.Audit.Schedule)
	c.Audit.S3Endpoint = getEnv("LINKDECK_AUDIT_S3_ENDPOINT", c.Audit.S3Endpoint)
	c.Audit.S3Region = getEnv("LINKDECK_AUDIT_S3_REGION", c.Audit.S3Region)
	c.Audit.S3Bucket = getEnv("LINKDECK_AUDIT_S3_BUCKET", c.Audit.S3Bucket)
	c.Audit.S3AccessKey = getEnv("LINKDECK_AUDIT_S3_ACCESS_KEY", c.Audit.S3AccessKey)
	c.Audit.S3SecretKey = getEnv("LINKDECK_AUDIT_S3_SECRET_KEY", c.Audit.S3SecretKey)

	c.Observability.LogLevel = getEnv("LINKDECK_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("LINKDECK_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("LINKDECK_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("LINKDECK_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("LINKDECK_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("LINKDECK_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("LINKDECK_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Session.Strategy {
	case "provider":
		if c.Session.PublicSessionURL == "" {
			return fmt.Errorf("public session URL is required for the provider strategy")
		}
	case "oidc":
		if c.Session.OIDCIssuerURL == "" || c.Session.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer URL and client ID are required for the oidc strategy")
		}
	default:
		return fmt.Errorf("invalid session strategy: %s (must be provider or oidc)", c.Session.Strategy)
	}

	switch c.RoleCache.Backend {
	case "memory":
	case "redis":
		if c.RoleCache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis role cache")
		}
	default:
		return fmt.Errorf("invalid role cache backend: %s (must be memory or redis)", c.RoleCache.Backend)
	}

	if c.Audit.ArchiveEnabled && c.Audit.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when audit archiving is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
