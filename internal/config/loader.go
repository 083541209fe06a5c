package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"

	"github.com/pvmasny/yandex-arch-pro-09/internal/mart"
	"github.com/pvmasny/yandex-arch-pro-09/internal/olap"
	"github.com/pvmasny/yandex-arch-pro-09/internal/reportstore"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// GapPolicy returns the parsed join gap policy.
func (c MartConfig) GapPolicy() (mart.GapPolicy, error) {
	return mart.ParseGapPolicy(c.JoinGapPolicy)
}

// Options converts the settings to ClickHouse connection options.
func (c OLAPConfig) Options() olap.Options {
	addrs := make([]string, 0, len(c.Addr))
	for _, a := range c.Addr {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return olap.Options{
		Addr:        addrs,
		Database:    c.Database,
		Username:    c.User,
		Password:    c.Password,
		DialTimeout: c.DialTimeout,
		Secure:      c.Secure,
	}
}

// Options converts the settings to report cache options.
func (c ReportCacheConfig) Options() reportstore.Options {
	return reportstore.Options{
		Endpoint:    c.Endpoint,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Bucket:      c.Bucket,
		UseSSL:      c.UseSSL,
		URLExpiry:   c.URLExpiry,
		CDNEndpoint: c.CDNEndpoint,
	}
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Sources
	if c.Sources.CrmPath == "" {
		errs = append(errs, "CRM_CSV_PATH must not be empty")
	}
	if c.Sources.TelemetryPath == "" {
		errs = append(errs, "TELEMETRY_CSV_PATH must not be empty")
	}

	// OLAP
	if len(c.OLAP.Addr) == 0 {
		errs = append(errs, "OLAP_ADDR must list at least one host:port")
	}
	if err := olap.ValidateTableName(c.OLAP.Table); err != nil {
		errs = append(errs, fmt.Sprintf("OLAP_TABLE: %v", err))
	}
	if c.OLAP.DialTimeout <= 0 {
		errs = append(errs, "OLAP_DIAL_TIMEOUT must be positive")
	}

	// Journal
	if c.Journal.Enabled() && c.Journal.MaxConns <= 0 {
		errs = append(errs, "JOURNAL_MAX_CONNS must be positive")
	}

	// Mart
	if _, err := c.Mart.GapPolicy(); err != nil {
		errs = append(errs, fmt.Sprintf("MART_JOIN_GAP_POLICY: %v", err))
	}

	// Schedule
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULE_CRON (%q): %v", c.Schedule.Cron, err))
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "SERVER_RATE_LIMIT must be non-negative")
	}

	// Report cache
	if c.Cache.Enabled() {
		if c.Cache.Bucket == "" {
			errs = append(errs, "REPORT_CACHE_BUCKET must not be empty")
		}
		if c.Cache.URLExpiry < time.Second || c.Cache.URLExpiry > 7*24*time.Hour {
			errs = append(errs, "REPORT_CACHE_URL_EXPIRY must be between 1s and 7 days")
		}
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Passwords and database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Sources: {Crm: %q, Telemetry: %q}, ", c.Sources.CrmPath, c.Sources.TelemetryPath))
	b.WriteString(fmt.Sprintf("OLAP: {Addr: %v, Database: %q, User: %q, Password: %s, Table: %q}, ",
		c.OLAP.Addr, c.OLAP.Database, c.OLAP.User, mask(c.OLAP.Password), c.OLAP.Table))
	b.WriteString(fmt.Sprintf("Journal: {URL: %s, MaxConns: %d}, ", mask(c.Journal.URL), c.Journal.MaxConns))
	b.WriteString(fmt.Sprintf("Mart: {JoinGapPolicy: %q}, ", c.Mart.JoinGapPolicy))
	b.WriteString(fmt.Sprintf("Schedule: {Cron: %q}, ", c.Schedule.Cron))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Cache: {Endpoint: %q, Bucket: %q, SecretKey: %s}, ",
		c.Cache.Endpoint, c.Cache.Bucket, mask(c.Cache.SecretKey)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[EMPTY]"
	}
	return "[MASKED]"
}
