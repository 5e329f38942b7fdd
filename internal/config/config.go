package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// AMQP event publishing (disabled when URL is empty)
	AMQPURL      string
	AMQPExchange string

	// S3-compatible backup storage (disabled when bucket/keys are empty)
	S3Endpoint  string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3KeyPrefix string

	// Backup schedule
	BackupHour          int
	BackupRetentionDays int
	BackupPassphrase    string

	// Rate limiting
	RateLimitPerMinute int
}

func Load() *Config {
	return &Config{
		Port: getEnv("HOUSETAB_PORT", "8080"),

		DBPath: getEnv("HOUSETAB_DB_PATH", "housetab.db"),

		LogLevel:  getEnv("HOUSETAB_LOG_LEVEL", "info"),
		LogFormat: getEnv("HOUSETAB_LOG_FORMAT", "text"),

		AMQPURL:      getEnv("HOUSETAB_AMQP_URL", ""),
		AMQPExchange: getEnv("HOUSETAB_AMQP_EXCHANGE", "housetab"),

		S3Endpoint:  getEnv("HOUSETAB_S3_ENDPOINT", ""),
		S3Bucket:    getEnv("HOUSETAB_S3_BUCKET", ""),
		S3Region:    getEnv("HOUSETAB_S3_REGION", "auto"),
		S3AccessKey: getEnv("HOUSETAB_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("HOUSETAB_S3_SECRET_KEY", ""),
		S3KeyPrefix: getEnv("HOUSETAB_S3_KEY_PREFIX", "backups"),

		BackupHour:          getEnvInt("HOUSETAB_BACKUP_HOUR", 3),
		BackupRetentionDays: getEnvInt("HOUSETAB_BACKUP_RETENTION_DAYS", 30),
		BackupPassphrase:    getEnv("HOUSETAB_BACKUP_PASSPHRASE", ""),

		RateLimitPerMinute: getEnvInt("HOUSETAB_RATE_LIMIT", 240),
	}
}

// Validate checks the configuration and returns an error describing every
// invalid field.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "pretty":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json pretty]", c.LogFormat))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	// S3 settings travel together. Endpoint and prefix are optional.
	s3Fields := c.S3Bucket != "" || c.S3AccessKey != "" || c.S3SecretKey != ""
	s3Complete := c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
	if s3Fields && !s3Complete {
		errors = append(errors, "incomplete S3 configuration: bucket, access key, and secret key are all required")
	}

	if c.BackupHour < 0 || c.BackupHour > 23 {
		errors = append(errors, fmt.Sprintf("invalid backup hour %d: must be between 0 and 23", c.BackupHour))
	}
	if c.BackupRetentionDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid backup retention %d: must be at least 1 day", c.BackupRetentionDays))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// BackupEnabled reports whether S3 storage is fully configured.
func (c *Config) BackupEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// RateLimitWindow is the fixed window the per-minute limit applies to.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Minute
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
