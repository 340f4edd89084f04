package config

import (
	"fmt"
	"slices"
	"strings"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	_, err := DecodeDelimiter(c.Aggregate.Delimiter)
	check(err == nil, "DELIMITER (%q) is not a valid escape sequence", c.Aggregate.Delimiter)
	check(c.Aggregate.MaxGroups >= 0, "AGG_MAX_GROUPS must be non-negative")
	check(c.Aggregate.MaxLineBytes >= 0, "AGG_MAX_LINE_BYTES must be non-negative")

	db := c.Database
	check(db.MaxConns >= db.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
	check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
	check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	check(c.Service.MaxBodySize > 0, "SERVICE_MAX_BODY_SIZE must be positive")
	check(c.Service.MaxConcurrent > 0, "SERVICE_MAX_CONCURRENT must be positive")
	check(c.Service.MaxWaitTime > 0, "SERVICE_MAX_WAIT_TIME must be positive")
	check(c.Service.Timeout > 0, "SERVICE_TIMEOUT must be positive")

	check(!c.Rate.Enabled || c.Rate.RequestsPerMinute > 0,
		"RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	check(!c.Security.RequireAPIKey || len(c.Security.APIKeys) > 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")

	check(slices.Contains(logLevels, strings.ToLower(c.Logging.Level)),
		"LOG_LEVEL (%q) must be one of: %s", c.Logging.Level, strings.Join(logLevels, ", "))
	check(slices.Contains(logFormats, strings.ToLower(c.Logging.Format)),
		"LOG_FORMAT (%q) must be one of: %s", c.Logging.Format, strings.Join(logFormats, ", "))

	if len(problems) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// String renders the config for logs with the database URL masked and API
// keys reduced to a count.
func (c *Config) String() string {
	dbURL := ""
	if c.Database.URL != "" {
		dbURL = "[MASKED]"
	}

	sections := []string{
		fmt.Sprintf("Aggregate: {Delimiter: %q, Locale: %q, MaxGroups: %d, Strict: %v}",
			c.Aggregate.Delimiter, c.Aggregate.Locale, c.Aggregate.MaxGroups, c.Aggregate.Strict),
		fmt.Sprintf("Server: {Host: %q, Port: %d}", c.Server.Host, c.Server.Port),
		fmt.Sprintf("Service: {MaxBodySize: %d, MaxConcurrent: %d}",
			c.Service.MaxBodySize, c.Service.MaxConcurrent),
		fmt.Sprintf("Database: {URL: %s, MaxConns: %d, MinConns: %d}",
			dbURL, c.Database.MaxConns, c.Database.MinConns),
		fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}",
			c.Rate.Enabled, c.Rate.RequestsPerMinute),
		fmt.Sprintf("Security: {TrustedProxies: %d, RequireAPIKey: %v, APIKeys: %d}",
			len(c.Security.TrustedProxies), c.Security.RequireAPIKey, len(c.Security.APIKeys)),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}
