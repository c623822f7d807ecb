// Package config provides configuration loading and management for the sync engine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldsync/fieldsync/internal/telemetry"
)

const (
	// StorageTypeMemory keeps records in process memory (tests, demos)
	StorageTypeMemory = "memory"

	// StorageTypeSQLite keeps records in a local SQLite file (devices)
	StorageTypeSQLite = "sqlite"

	// StorageTypeDatabase keeps records in PostgreSQL (facility hubs)
	StorageTypeDatabase = "database"
)

const (
	// IntervalFrequent is the cadence class of record types edited during a clinic day
	IntervalFrequent = "FREQUENT"

	// IntervalDaily is the cadence class of slowly changing reference data
	IntervalDaily = "DAILY"
)

// EnvPrefix is the prefix of every environment variable the engine reads
const EnvPrefix = "FIELDSYNC"

// Environment variables read for secrets
const (
	EnvDatabasePassword = "FIELDSYNC_DATABASE_PASSWORD"
	EnvRemoteToken      = "FIELDSYNC_REMOTE_TOKEN"
)

const (
	defaultDeviceName       = "fieldsync"
	defaultRemoteTimeout    = 30 * time.Second
	defaultMaxRetries       = 3
	defaultUserAgent        = "fieldsync"
	defaultSQLitePath       = "./data/fieldsync.db"
	defaultPollInterval     = time.Minute
	defaultMaxConcurrency   = 0
	defaultMaxPagesPerCycle = 1000
	defaultBatchSize        = 50
	defaultStatusDir        = "./data/status"
	defaultAPIAddress       = "127.0.0.1:8090"
)

var defaultIntervals = map[string]time.Duration{
	IntervalFrequent: 15 * time.Minute,
	IntervalDaily:    24 * time.Hour,
}

var recordTypeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidRecordTypeName reports whether name can identify a record type in URLs and storage
func ValidRecordTypeName(name string) bool {
	return recordTypeNamePattern.MatchString(name)
}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DeviceName identifies this installation in logs and telemetry
	DeviceName string `yaml:"deviceName,omitempty"`

	Remote      RemoteConfig       `yaml:"remote"`
	Storage     StorageConfig      `yaml:"storage,omitempty"`
	Schedule    ScheduleConfig     `yaml:"schedule,omitempty"`
	RecordTypes []RecordTypeConfig `yaml:"recordTypes"`

	// StatusDir is where per-record-type cycle status files are written
	StatusDir string `yaml:"statusDir,omitempty"`

	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
	Logging   *LoggingConfig    `yaml:"logging,omitempty"`
	API       *APIConfig        `yaml:"api,omitempty"`
}

// RemoteConfig defines how the sync server is reached
type RemoteConfig struct {
	// BaseURL is the sync API root; record type paths are appended to it
	BaseURL string `yaml:"baseURL"`

	// Timeout bounds a single HTTP request (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the number of attempts for an idempotent page fetch
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// TokenFile is the path to a file containing the bearer token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// UserAgent is sent with every request
	UserAgent string `yaml:"userAgent,omitempty"`
}

// StorageConfig selects the local record store
type StorageConfig struct {
	// Type is one of memory, sqlite or database. Defaults to sqlite.
	Type     string          `yaml:"type,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// SQLiteConfig defines the on-device database file
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of pooled connections
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// ScheduleConfig defines when the background scheduler syncs
type ScheduleConfig struct {
	// PollInterval is the scheduler tick; each tick syncs the record types whose cadence elapsed
	PollInterval string `yaml:"pollInterval,omitempty"`

	// Intervals maps cadence classes (FREQUENT, DAILY, ...) to durations.
	// Entries override or extend the defaults.
	Intervals map[string]string `yaml:"intervals,omitempty"`

	// MaxConcurrency limits how many record types sync at once; 0 means no limit
	MaxConcurrency int `yaml:"maxConcurrency,omitempty"`

	// MaxPagesPerCycle bounds the pages one pull may fetch in a single cycle
	MaxPagesPerCycle int `yaml:"maxPagesPerCycle,omitempty"`
}

// RecordTypeConfig is the immutable sync configuration of one record type
type RecordTypeConfig struct {
	// Name is the record type identifier used in URLs and storage
	Name string `yaml:"name"`

	// BatchSize is both the push batch size and the pull page size
	BatchSize int `yaml:"batchSize,omitempty"`

	// SyncInterval is the cadence class name; defaults to FREQUENT
	SyncInterval string `yaml:"syncInterval,omitempty"`

	// RequiresApprovedUser gates the record type behind the approval gate
	RequiresApprovedUser bool `yaml:"requiresApprovedUser,omitempty"`

	// PushPath and PullPath override the default "{name}/sync" endpoints
	PushPath string `yaml:"pushPath,omitempty"`
	PullPath string `yaml:"pullPath,omitempty"`
}

// LoggingConfig defines the log output
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level,omitempty"`

	// Format is json or text
	Format string `yaml:"format,omitempty"`

	// File enables a rotating log file next to stderr output
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
	MaxAgeDays int    `yaml:"maxAgeDays,omitempty"`
}

// APIConfig defines the local control API
type APIConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetDeviceName returns the device name, using "fieldsync" if not specified
func (c *Config) GetDeviceName() string {
	if c.DeviceName == "" {
		return defaultDeviceName
	}
	return c.DeviceName
}

// GetStatusDir returns the cycle status directory
func (c *Config) GetStatusDir() string {
	if c.StatusDir == "" {
		return defaultStatusDir
	}
	return c.StatusDir
}

// GetAPIAddress returns the control API listen address
func (c *Config) GetAPIAddress() string {
	if c.API == nil || c.API.Address == "" {
		return defaultAPIAddress
	}
	return c.API.Address
}

// GetRecordType returns the configuration of a record type by name
func (c *Config) GetRecordType(name string) (RecordTypeConfig, bool) {
	for _, rt := range c.RecordTypes {
		if rt.Name == name {
			return rt, true
		}
	}
	return RecordTypeConfig{}, false
}

// GetTimeout returns the per-request timeout
func (r *RemoteConfig) GetTimeout() time.Duration {
	if r.Timeout == "" {
		return defaultRemoteTimeout
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return defaultRemoteTimeout
	}
	return d
}

// GetMaxRetries returns the number of attempts for a page fetch
func (r *RemoteConfig) GetMaxRetries() int {
	if r.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return r.MaxRetries
}

// GetUserAgent returns the HTTP user agent
func (r *RemoteConfig) GetUserAgent() string {
	if r.UserAgent == "" {
		return defaultUserAgent
	}
	return r.UserAgent
}

// GetToken returns the bearer token using the following priority:
// 1. Read from TokenFile if specified
// 2. Read from FIELDSYNC_REMOTE_TOKEN environment variable
//
// An empty token means requests are sent without authorization.
func (r *RemoteConfig) GetToken() (string, error) {
	if r.TokenFile != "" {
		data, err := os.ReadFile(filepath.Clean(r.TokenFile))
		if err != nil {
			return "", fmt.Errorf("failed to read token from file %s: %w", r.TokenFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return os.Getenv(EnvRemoteToken), nil
}

// GetType returns the storage type, defaulting to sqlite
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeSQLite
	}
	return s.Type
}

// GetSQLitePath returns the SQLite file path
func (s *StorageConfig) GetSQLitePath() string {
	if s.SQLite == nil || s.SQLite.Path == "" {
		return defaultSQLitePath
	}
	return s.SQLite.Path
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from FIELDSYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvDatabasePassword); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", EnvDatabasePassword,
	)
}

// GetConnectionString builds a PostgreSQL connection URL.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetConnMaxLifetime returns the parsed connection lifetime, zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	if d.ConnMaxLifetime == "" {
		return 0
	}
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0
	}
	return lifetime
}

// GetPollInterval returns the scheduler tick
func (s *ScheduleConfig) GetPollInterval() time.Duration {
	if s.PollInterval == "" {
		return defaultPollInterval
	}
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil {
		return defaultPollInterval
	}
	return d
}

// GetIntervals returns the cadence classes merged over the defaults
func (s *ScheduleConfig) GetIntervals() map[string]time.Duration {
	out := make(map[string]time.Duration, len(defaultIntervals)+len(s.Intervals))
	for name, d := range defaultIntervals {
		out[name] = d
	}
	for name, raw := range s.Intervals {
		if d, err := time.ParseDuration(raw); err == nil {
			out[name] = d
		}
	}
	return out
}

// GetMaxConcurrency returns the concurrent record type limit; 0 means unlimited
func (s *ScheduleConfig) GetMaxConcurrency() int {
	if s.MaxConcurrency <= 0 {
		return defaultMaxConcurrency
	}
	return s.MaxConcurrency
}

// GetMaxPagesPerCycle returns the pull page limit of one cycle
func (s *ScheduleConfig) GetMaxPagesPerCycle() int {
	if s.MaxPagesPerCycle <= 0 {
		return defaultMaxPagesPerCycle
	}
	return s.MaxPagesPerCycle
}

// GetBatchSize returns the batch size, defaulting to 50
func (r *RecordTypeConfig) GetBatchSize() int {
	if r.BatchSize <= 0 {
		return defaultBatchSize
	}
	return r.BatchSize
}

// GetSyncInterval returns the cadence class, defaulting to FREQUENT
func (r *RecordTypeConfig) GetSyncInterval() string {
	if r.SyncInterval == "" {
		return IntervalFrequent
	}
	return r.SyncInterval
}

// GetPushPath returns the path the record type pushes to, relative to the base URL
func (r *RecordTypeConfig) GetPushPath() string {
	if r.PushPath == "" {
		return r.Name + "/sync"
	}
	return strings.TrimPrefix(r.PushPath, "/")
}

// GetPullPath returns the path the record type pulls from, relative to the base URL
func (r *RecordTypeConfig) GetPullPath() string {
	if r.PullPath == "" {
		return r.Name + "/sync"
	}
	return strings.TrimPrefix(r.PullPath, "/")
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Remote.validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Schedule.validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := c.validateRecordTypes(); err != nil {
		return err
	}
	if err := c.Logging.validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (r *RemoteConfig) validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("baseURL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("baseURL must include a host")
	}
	if r.Timeout != "" {
		if _, err := time.ParseDuration(r.Timeout); err != nil {
			return fmt.Errorf("timeout must be a valid duration (e.g., '30s'): %w", err)
		}
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("maxRetries cannot be negative")
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.GetType() {
	case StorageTypeMemory, StorageTypeSQLite:
		return nil
	case StorageTypeDatabase:
		return s.Database.validate()
	default:
		return fmt.Errorf("unknown storage type %q (expected %s, %s or %s)",
			s.Type, StorageTypeMemory, StorageTypeSQLite, StorageTypeDatabase)
	}
}

func (d *DatabaseConfig) validate() error {
	if d == nil {
		return fmt.Errorf("database configuration is required for storage type %s", StorageTypeDatabase)
	}
	var errs []error
	if d.Host == "" {
		errs = append(errs, fmt.Errorf("database host is required"))
	}
	if d.Port == 0 {
		errs = append(errs, fmt.Errorf("database port is required"))
	}
	if d.User == "" {
		errs = append(errs, fmt.Errorf("database user is required"))
	}
	if d.Database == "" {
		errs = append(errs, fmt.Errorf("database name is required"))
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			errs = append(errs, fmt.Errorf("invalid connection max lifetime: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *ScheduleConfig) validate() error {
	if s.PollInterval != "" {
		d, err := time.ParseDuration(s.PollInterval)
		if err != nil {
			return fmt.Errorf("pollInterval must be a valid duration (e.g., '1m'): %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("pollInterval must be positive")
		}
	}
	for name, raw := range s.Intervals {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("intervals.%s must be a valid duration: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("intervals.%s must be positive", name)
		}
	}
	if s.MaxConcurrency < 0 {
		return fmt.Errorf("maxConcurrency cannot be negative")
	}
	return nil
}

func (c *Config) validateRecordTypes() error {
	if len(c.RecordTypes) == 0 {
		return fmt.Errorf("at least one record type must be configured")
	}

	intervals := c.Schedule.GetIntervals()
	names := make(map[string]bool)
	for i, rt := range c.RecordTypes {
		if rt.Name == "" {
			return fmt.Errorf("recordTypes[%d]: name is required", i)
		}
		prefix := fmt.Sprintf("recordTypes[%d] (%s)", i, rt.Name)
		if !ValidRecordTypeName(rt.Name) {
			return fmt.Errorf("%s: name must match %s", prefix, recordTypeNamePattern)
		}
		if names[rt.Name] {
			return fmt.Errorf("%s: duplicate record type name", prefix)
		}
		names[rt.Name] = true

		if rt.BatchSize < 0 {
			return fmt.Errorf("%s: batchSize cannot be negative", prefix)
		}
		if _, ok := intervals[rt.GetSyncInterval()]; !ok {
			return fmt.Errorf("%s: unknown syncInterval %q", prefix, rt.SyncInterval)
		}
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	if l == nil {
		return nil
	}
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}
