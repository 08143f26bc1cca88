package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Inbound   InboundConfig
	Send      SendConfig
	Cleanup   CleanupConfig
	Providers ProviderConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration for rate-limit counters
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig holds S3/MinIO configuration for attachment objects
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// AuthConfig holds token configuration
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// InboundConfig holds configuration for the inbound email webhook
type InboundConfig struct {
	// SharedSecret guards POST /inbound/email; the edge trigger must send it
	// in the X-Inbound-Secret header.
	SharedSecret string
	// MaxAttachmentSize is the per-attachment persistence cap in bytes.
	MaxAttachmentSize int64
}

// SendConfig holds outbound delivery configuration
type SendConfig struct {
	FromAddress string
	FromName    string
	Interval    time.Duration
	BatchSize   int
}

// CleanupConfig holds attachment janitor configuration
type CleanupConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// ProviderConfig holds API keys for the transactional email providers.
// The first configured key wins, in MailChannels, Resend, SendGrid order.
type ProviderConfig struct {
	MailChannelsAPIKey string
	ResendAPIKey       string
	SendGridAPIKey     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: []string{getEnv("CORS_ORIGIN", "*")},
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mailbox"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:          getEnv("STORAGE_BUCKET", "mailbox-attachments"),
			UseSSL:          getBoolEnv("STORAGE_USE_SSL", false),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: getDurationEnv("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:            getEnv("JWT_ISSUER", "mailbox"),
		},
		Inbound: InboundConfig{
			SharedSecret:      getEnv("INBOUND_SECRET", ""),
			MaxAttachmentSize: getInt64Env("MAX_ATTACHMENT_SIZE", 10*1024*1024),
		},
		Send: SendConfig{
			FromAddress: getEnv("SEND_FROM_ADDRESS", "noreply@localhost"),
			FromName:    getEnv("SEND_FROM_NAME", "Mailbox"),
			Interval:    getDurationEnv("SEND_INTERVAL", 1*time.Minute),
			BatchSize:   getIntEnv("SEND_BATCH_SIZE", 10),
		},
		Cleanup: CleanupConfig{
			Interval:  getDurationEnv("CLEANUP_INTERVAL", 24*time.Hour),
			Retention: getDurationEnv("CLEANUP_RETENTION", 30*24*time.Hour),
		},
		Providers: ProviderConfig{
			MailChannelsAPIKey: getEnv("MAILCHANNELS_API_KEY", ""),
			ResendAPIKey:       getEnv("RESEND_API_KEY", ""),
			SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		},
	}
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getIntEnv returns integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getInt64Env returns 64-bit integer from environment variable or default
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

// getBoolEnv returns boolean from environment variable or default
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
