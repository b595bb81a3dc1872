package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config holds runtime configuration for the verification client and its
// optional ambient services (archive database, metrics endpoint, caches).
type Config struct {
	// Extender / PublicationsFile collaborator endpoints. Either may name a
	// file://, http:// or https:// URI; the scheme selects the transport.
	ExtenderURI        string
	PublicationsFileURI string

	// Default trust anchor used when no publications file / explicit
	// certificate is supplied to a policy.
	TrustAnchorPath string

	// Archive / audit-log database (optional - PublicationsFile history and
	// verification audit trail can run entirely in-memory without one).
	DatabaseURL         string
	DatabaseRequired    bool
	DBHost              string
	DBPort              int
	DBUser              string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	DBMaxOpenConns      int
	DBMaxIdleConns      int
	DBConnMaxLifetime   time.Duration

	// Extender-chain cache. Backend selects which pkg/cache adapter is
	// constructed: "bbolt" (default, embedded, single-process),
	// "cometbft" (pluggable KV store, suited to long-running services) or
	// "memory" (in-process, not persisted).
	CacheBackend string
	CacheDir     string

	// Metrics endpoint (Prometheus). Empty disables the listener.
	MetricsAddr string

	// LogLevel controls the verbosity passed to the stdlib logger prefix;
	// this client does not adopt a structured logging library.
	LogLevel string

	RequestTimeout time.Duration
}

// Load reads configuration from environment variables, applying safe
// defaults for everything except the collaborator endpoints, which must be
// configured explicitly before Validate() will pass.
func Load() (*Config, error) {
	cfg := &Config{
		ExtenderURI:         getEnv("KSI_EXTENDER_URI", ""),
		PublicationsFileURI: getEnv("KSI_PUBLICATIONS_URI", ""),
		TrustAnchorPath:     getEnv("KSI_TRUST_ANCHOR", ""),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseRequired: getEnvBool("DATABASE_REQUIRED", false),

		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnvInt("DB_PORT", 5432),
		DBUser:            getEnv("DB_USER", "ksiverify"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBName:            getEnv("DB_NAME", "ksiverify"),
		DBSSLMode:         getEnv("DB_SSL_MODE", "require"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),

		CacheBackend: getEnv("KSI_CACHE_BACKEND", "bbolt"),
		CacheDir:     getEnv("KSI_CACHE_DIR", "./data/cache"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RequestTimeout: getEnvDuration("KSI_REQUEST_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent and that
// at least one collaborator endpoint is configured. It does not require a
// database: the archive is optional.
func (c *Config) Validate() error {
	var errs []string

	if c.ExtenderURI == "" && c.PublicationsFileURI == "" && c.TrustAnchorPath == "" {
		errs = append(errs, "at least one of KSI_EXTENDER_URI, KSI_PUBLICATIONS_URI, KSI_TRUST_ANCHOR is required")
	}

	switch c.CacheBackend {
	case "bbolt", "cometbft", "memory":
	default:
		errs = append(errs, fmt.Sprintf("KSI_CACHE_BACKEND %q is not one of bbolt, cometbft, memory", c.CacheBackend))
	}

	if c.DatabaseRequired && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required because DATABASE_REQUIRED is set")
	}
	if c.DatabaseURL != "" && strings.Contains(c.DatabaseURL, "sslmode=disable") {
		errs = append(errs, "DATABASE_URL must not disable sslmode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
