// Package config provides the service configuration: backend selection,
// HTTP settings, per-kind overrides and metrics.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arkilian/catalogmeta/internal/catalogs"
	"github.com/arkilian/catalogmeta/internal/translate"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CATALOGMETA_"

// Backend types.
const (
	BackendSQLite = "sqlite"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// Config holds the service configuration.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir" validate:"required"`

	// Backend selects where entity properties are stored
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// GRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Kinds holds per-kind overrides keyed by kind name
	Kinds map[string]KindConfig `json:"kinds" yaml:"kinds" validate:"dive"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Shutdown configuration
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
}

// BackendConfig holds backend configuration.
type BackendConfig struct {
	// Type is the backend type: sqlite, local, s3
	Type string `json:"type" yaml:"type" validate:"oneof=sqlite local s3"`

	// SQLitePath is the database file (for sqlite type)
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	// LocalPath is the document root (for local type)
	LocalPath string `json:"local_path" yaml:"local_path"`

	// ReadConcurrency bounds parallel object reads (for local and s3 types)
	ReadConcurrency int `json:"read_concurrency" yaml:"read_concurrency" validate:"gte=1"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr" validate:"required"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gt=0"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gt=0"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Enabled enables the gRPC property service
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the gRPC listen address
	Addr string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// KindConfig overrides the defaults of one catalog kind.
type KindConfig struct {
	// StrictUnknownKeys rejects undeclared keys when set
	StrictUnknownKeys *bool `json:"strict_unknown_keys" yaml:"strict_unknown_keys"`

	// UnmappedKeyPolicy is passthrough or drop
	UnmappedKeyPolicy string `json:"unmapped_key_policy" yaml:"unmapped_key_policy" validate:"omitempty,oneof=passthrough drop"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace" validate:"required_if=Enabled true"`
	Path      string `json:"path" yaml:"path" validate:"required_if=Enabled true"`

	// StatsWindow is how long validation failures are kept for the
	// top-failures report
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	// Timeout is the overall budget for draining and closing
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// DrainTimeout is how long in-flight requests may take to finish
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout" validate:"gt=0,ltefield=Timeout"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/catalogmeta",
		Backend: BackendConfig{
			Type:            BackendSQLite,
			ReadConcurrency: 8,
		},
		HTTP: HTTPConfig{
			Addr:         ":8090",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Metrics: MetricsConfig{
			Enabled:     true,
			Namespace:   "catalogmeta",
			Path:        "/metrics",
			StatsWindow: time.Hour,
		},
		Shutdown: ShutdownConfig{
			Timeout:      30 * time.Second,
			DrainTimeout: 15 * time.Second,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/catalogmeta"
	}
	if c.Backend.SQLitePath == "" {
		c.Backend.SQLitePath = filepath.Join(c.DataDir, "catalogmeta.db")
	}
	if c.Backend.LocalPath == "" {
		c.Backend.LocalPath = filepath.Join(c.DataDir, "documents")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Backend.Type == BackendS3 && c.Backend.S3.Bucket == "" {
		return fmt.Errorf("backend.s3.bucket is required when backend type is s3")
	}

	for name := range c.Kinds {
		if !knownKind(name) {
			return fmt.Errorf("kinds.%s: unknown kind (known: %s)", name, strings.Join(catalogs.BuiltinNames(), ", "))
		}
	}
	return nil
}

func knownKind(name string) bool {
	for _, k := range catalogs.BuiltinNames() {
		if k == name {
			return true
		}
	}
	return false
}

// KindOverrides converts the per-kind settings for catalogs.Builtin.
func (c *Config) KindOverrides() (map[string]catalogs.Overrides, error) {
	names := make([]string, 0, len(c.Kinds))
	for name := range c.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]catalogs.Overrides, len(names))
	for _, name := range names {
		kc := c.Kinds[name]
		o := catalogs.Overrides{StrictUnknownKeys: kc.StrictUnknownKeys}
		if kc.UnmappedKeyPolicy != "" {
			policy, err := translate.ParsePolicy(kc.UnmappedKeyPolicy)
			if err != nil {
				return nil, fmt.Errorf("kinds.%s: %w", name, err)
			}
			o.UnmappedKeyPolicy = &policy
		}
		out[name] = o
	}
	return out, nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CATALOGMETA_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Backend configuration
	if v := getenv("BACKEND_TYPE"); v != "" {
		cfg.Backend.Type = v
	}
	if v := getenv("BACKEND_SQLITE_PATH"); v != "" {
		cfg.Backend.SQLitePath = v
	}
	if v := getenv("BACKEND_LOCAL_PATH"); v != "" {
		cfg.Backend.LocalPath = v
	}
	if v := getenv("BACKEND_READ_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Backend.ReadConcurrency)
	}
	if v := getenv("S3_BUCKET"); v != "" {
		cfg.Backend.S3.Bucket = v
	}
	if v := getenv("S3_REGION"); v != "" {
		cfg.Backend.S3.Region = v
	}
	if v := getenv("S3_ENDPOINT"); v != "" {
		cfg.Backend.S3.Endpoint = v
	}
	if v := getenv("S3_USE_PATH_STYLE"); v != "" {
		cfg.Backend.S3.UsePathStyle = v == "true" || v == "1"
	}

	// HTTP configuration
	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := getenv("HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = d
		}
	}
	if v := getenv("HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = d
		}
	}

	// gRPC configuration
	if v := getenv("GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}
	if v := getenv("GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}

	// Metrics configuration
	if v := getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := getenv("METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}

	// Shutdown configuration
	if v := getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown.Timeout = d
		}
	}
	if v := getenv("SHUTDOWN_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown.DrainTimeout = d
		}
	}
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	switch c.Backend.Type {
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Backend.SQLitePath))
	case BackendLocal:
		dirs = append(dirs, c.Backend.LocalPath)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
