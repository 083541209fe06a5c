// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Sources  SourcesConfig
	OLAP     OLAPConfig
	Journal  JournalConfig
	Mart     MartConfig
	Schedule ScheduleConfig
	Server   ServerConfig
	Cache    ReportCacheConfig
	Logging  LoggingConfig
}

// SourcesConfig locates the CSV exports.
type SourcesConfig struct {
	CrmPath       string `env:"CRM_CSV_PATH" envDefault:"/opt/airflow/data_files/crm.csv"`
	TelemetryPath string `env:"TELEMETRY_CSV_PATH" envDefault:"/opt/airflow/data_files/telemetry.csv"`
}

// OLAPConfig holds ClickHouse connection settings.
type OLAPConfig struct {
	// Addr is a comma-separated list of host:port native protocol endpoints
	Addr        []string      `env:"OLAP_ADDR" envSeparator:"," envDefault:"olap_db:9000"`
	Database    string        `env:"OLAP_DATABASE" envDefault:"default"`
	User        string        `env:"OLAP_USER" envDefault:"default"`
	Password    string        `env:"OLAP_PASSWORD"`
	Table       string        `env:"OLAP_TABLE" envDefault:"bionicpro_reports"`
	DialTimeout time.Duration `env:"OLAP_DIAL_TIMEOUT" envDefault:"10s"`
	Secure      bool          `env:"OLAP_SECURE" envDefault:"false"`
}

// JournalConfig holds the optional run journal database.
type JournalConfig struct {
	// URL is the PostgreSQL connection string; the journal is off when empty
	URL      string `env:"JOURNAL_DATABASE_URL"`
	MaxConns int    `env:"JOURNAL_MAX_CONNS" envDefault:"4"`
}

// Enabled reports whether a journal database is configured.
func (c JournalConfig) Enabled() bool {
	return c.URL != ""
}

// MartConfig holds transformation settings.
type MartConfig struct {
	// JoinGapPolicy is fail or default; see mart.GapPolicy
	JoinGapPolicy string `env:"MART_JOIN_GAP_POLICY" envDefault:"fail"`
}

// ScheduleConfig holds the embedded scheduler settings.
type ScheduleConfig struct {
	// Cron is a standard 5-field cron spec evaluated in UTC
	Cron string `env:"SCHEDULE_CRON" envDefault:"0 2 * * *"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout bounds every request, including synchronous runs
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"10m"`

	// RateLimit is report read requests per minute per client IP; 0 disables
	RateLimit int `env:"SERVER_RATE_LIMIT" envDefault:"100"`
}

// ReportCacheConfig holds the S3-compatible store for exported reports.
type ReportCacheConfig struct {
	// Endpoint is the MinIO host:port; the cache is off when empty
	Endpoint  string        `env:"REPORT_CACHE_ENDPOINT"`
	AccessKey string        `env:"REPORT_CACHE_ACCESS_KEY"`
	SecretKey string        `env:"REPORT_CACHE_SECRET_KEY"`
	Bucket    string        `env:"REPORT_CACHE_BUCKET" envDefault:"reports"`
	UseSSL    bool          `env:"REPORT_CACHE_USE_SSL" envDefault:"false"`
	URLExpiry time.Duration `env:"REPORT_CACHE_URL_EXPIRY" envDefault:"1h"`

	// CDNEndpoint, when set, replaces presigned links with CDN links
	CDNEndpoint string `env:"REPORT_CACHE_CDN_ENDPOINT"`
}

// Enabled reports whether a report cache is configured.
func (c ReportCacheConfig) Enabled() bool {
	return c.Endpoint != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
