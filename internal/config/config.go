// Package config provides centralized configuration management for the
// aggregate command and the aggregation service. It loads configuration from
// environment variables with sensible defaults and validates all settings on
// startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Aggregate AggregateConfig
	Server    ServerConfig
	Service   ServiceConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
}

// AggregateConfig holds defaults for every aggregation, from the command line
// or over HTTP.
type AggregateConfig struct {
	// Delimiter separates fields, in escape notation such as \t or \xfe.
	// Empty means the 0xFE default.
	Delimiter string `env:"DELIMITER"`

	// Locale selects the collation used when sorting keys. Falls back to the
	// usual POSIX locale variables; "C" or empty sorts by bytes.
	Locale string `env:"AGG_LOCALE" envAlt:"LC_ALL,LC_COLLATE,LANG"`

	// MaxGroups caps distinct keys per aggregation (default: 0, unlimited)
	MaxGroups int `env:"AGG_MAX_GROUPS" default:"0"`

	// MaxLineBytes caps the length of one input line (default: 0, unlimited)
	MaxLineBytes int `env:"AGG_MAX_LINE_BYTES" default:"0"`

	// EmptyAverage is printed for averages with no values (default: nan)
	EmptyAverage string `env:"AGG_EMPTY_AVERAGE" default:"nan"`

	// Strict makes malformed numbers and dropped keys fatal (default: false)
	Strict bool `env:"AGG_STRICT" default:"false"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// ServiceConfig holds settings for aggregations run over HTTP.
type ServiceConfig struct {
	// MaxBodySize is the maximum request body in bytes (default: 100MB)
	MaxBodySize int64 `env:"SERVICE_MAX_BODY_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel aggregations (default: 5)
	MaxConcurrent int `env:"SERVICE_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an aggregation slot (default: 30s)
	MaxWaitTime time.Duration `env:"SERVICE_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single aggregation (default: 5m)
	Timeout time.Duration `env:"SERVICE_TIMEOUT" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// DatabaseConfig holds database connection settings for the PostgreSQL sink.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Only needed when writing
	// results to PostgreSQL. Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DecodeDelimiter expands escape notation in a delimiter. Go string escapes
// such as \t, \xfe, \036 and \u00fe are supported; text without a backslash is
// returned as is.
func DecodeDelimiter(s string) (string, error) {
	if s == "" || !strings.Contains(s, `\`) {
		return s, nil
	}
	quoted := `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	return strconv.Unquote(quoted)
}
