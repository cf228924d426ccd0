package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/schema"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "rowsearch.yaml"

// Supported datasource drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete rowsearch configuration.
type Config struct {
	// IndexPath is the directory holding the search index.
	IndexPath string `yaml:"index_path" json:"index_path"`

	// StateFile holds the sync checkpoint.
	StateFile string `yaml:"state_file" json:"state_file"`

	// Interval is the pause between sync cycles, in seconds.
	Interval int `yaml:"interval" json:"interval"`

	Server     ServerConfig             `yaml:"server" json:"server"`
	Logging    LoggingConfig            `yaml:"logging" json:"logging"`
	Datasource DatasourceConfig         `yaml:"datasource" json:"datasource"`
	Doctor     DoctorConfig             `yaml:"doctor" json:"doctor"`
	Schema     []schema.FieldDefinition `yaml:"schema" json:"schema"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address   string `yaml:"address" json:"address"`
	Port      int    `yaml:"port" json:"port"`
	PublicDir string `yaml:"public_dir" json:"public_dir"`
	// RateLimit caps API requests per minute per client IP. Zero disables it.
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`
	// RateBurst is how many requests a client may make at once.
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// LoggingConfig configures log level and the optional log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// DoctorConfig sets the thresholds `rowsearch doctor` checks against.
type DoctorConfig struct {
	// MinFreeMB is the free space required wherever rowsearch writes.
	MinFreeMB int `yaml:"min_free_mb" json:"min_free_mb"`
	// MinOpenFiles is the required soft limit on open files.
	MinOpenFiles int `yaml:"min_open_files" json:"min_open_files"`
}

// DatasourceConfig describes the relational source and the fetch query.
type DatasourceConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`

	// DSN overrides the discrete connection fields. For sqlite it is the
	// database file path.
	DSN string `yaml:"dsn" json:"-"`

	// Key is the source column holding the monotonically increasing row key.
	Key string `yaml:"key" json:"key"`

	// Query selects rows with key greater than its single parameter.
	Query string `yaml:"query" json:"query"`

	FetchSize      int `yaml:"fetch_size" json:"fetch_size"`
	ConnectRetries int `yaml:"connect_retries" json:"connect_retries"`
}

// NewConfig creates a new Config with defaults. Datasource query and schema
// have no defaults.
func NewConfig() *Config {
	return &Config{
		IndexPath: "./data/index",
		StateFile: "./data/state.yaml",
		Interval:  60,
		Server: ServerConfig{
			Address:   "127.0.0.1",
			Port:      8080,
			PublicDir: "public",
			RateLimit: 600,
			RateBurst: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Datasource: DatasourceConfig{
			Driver:         DriverPostgres,
			Host:           "localhost",
			Port:           5432,
			FetchSize:      1000,
			ConnectRetries: 2,
		},
		Doctor: DoctorConfig{
			MinFreeMB:    100,
			MinOpenFiles: 1024,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies ROWSEARCH_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Newf(errors.ErrCodeConfigNotFound, "configuration file %s not found", path).
			WithSuggestion("Pass --config or create " + DefaultPath)
	}
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, then applies environment overrides
// and validation.
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("failed to parse config: %v", err), err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies ROWSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ROWSEARCH_DATASOURCE_PASSWORD"); v != "" {
		c.Datasource.Password = v
	}
	if v := os.Getenv("ROWSEARCH_DATASOURCE_DSN"); v != "" {
		c.Datasource.DSN = v
	}
	if v := os.Getenv("ROWSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ROWSEARCH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// PollInterval returns Interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// BuildSchema returns the validated field schema.
func (c *Config) BuildSchema() (schema.Schema, error) {
	s, err := schema.New(c.Schema)
	if err != nil {
		return schema.Schema{}, errors.ConfigError(fmt.Sprintf("invalid schema: %v", err), err)
	}
	return s, nil
}

func invalid(format string, args ...any) error {
	return errors.Newf(errors.ErrCodeConfigInvalid, format, args...)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return invalid("interval must be greater than 0, got %d", c.Interval)
	}

	if c.IndexPath == "" {
		return invalid("index_path must be set")
	}
	if info, err := os.Stat(c.IndexPath); err == nil && !info.IsDir() {
		return invalid("index_path %s is not a directory", c.IndexPath)
	}

	if c.StateFile == "" {
		return invalid("state_file must be set")
	}
	if info, err := os.Stat(c.StateFile); err == nil && info.IsDir() {
		return invalid("state_file %s is a directory", c.StateFile)
	}

	if err := c.Datasource.validate(); err != nil {
		return err
	}

	s, err := c.BuildSchema()
	if err != nil {
		return err
	}
	if s.Len() == 0 {
		return invalid("schema must declare at least one field")
	}
	key, ok := s.FieldForColumn(c.Datasource.Key)
	if !ok {
		return invalid("datasource.key column %q is not mapped by any schema field", c.Datasource.Key)
	}
	if key.DataType.Kind != schema.KindInt {
		return invalid("datasource.key column %q must map to an Int field, got %s", c.Datasource.Key, key.DataType)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return invalid("server.rate_limit must be non-negative, got %d", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return invalid("server.rate_burst must be greater than 0 when rate_limit is set, got %d", c.Server.RateBurst)
	}

	if c.Doctor.MinFreeMB < 0 {
		return invalid("doctor.min_free_mb must be non-negative, got %d", c.Doctor.MinFreeMB)
	}
	if c.Doctor.MinOpenFiles < 0 {
		return invalid("doctor.min_open_files must be non-negative, got %d", c.Doctor.MinOpenFiles)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

func (d DatasourceConfig) validate() error {
	switch d.Driver {
	case DriverPostgres:
		if d.DSN == "" && (d.Host == "" || d.Database == "") {
			return invalid("datasource needs dsn or host and database")
		}
	case DriverSQLite:
		if d.DSN == "" {
			return invalid("datasource.dsn must name the sqlite database file")
		}
	default:
		return invalid("datasource.driver must be '%s' or '%s', got %q", DriverPostgres, DriverSQLite, d.Driver)
	}

	if strings.TrimSpace(d.Query) == "" {
		return invalid("datasource.query must be set")
	}
	if d.Key == "" {
		return invalid("datasource.key must be set")
	}
	if d.FetchSize <= 0 {
		return invalid("datasource.fetch_size must be greater than 0, got %d", d.FetchSize)
	}
	if d.ConnectRetries < 0 {
		return invalid("datasource.connect_retries must be non-negative, got %d", d.ConnectRetries)
	}
	return nil
}
