// Package config provides unified configuration for the zipcorpus pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/internal/logging"
	"github.com/zipcorpus/zipcorpus/internal/record"
)

// Storage types.
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "ZIPCORPUS_"

// Config holds the unified configuration for both pipeline stages.
type Config struct {
	// DataDir is the working directory holding archives and tables
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Generate configures Stage 1
	Generate GenerateConfig `json:"generate" yaml:"generate"`

	// Aggregate configures Stage 2
	Aggregate AggregateConfig `json:"aggregate" yaml:"aggregate"`

	// Workers is the worker pool size (0 means the host's CPU count)
	Workers int `json:"workers" yaml:"workers"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Manifest configuration
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// GenerateConfig holds archive generation configuration.
type GenerateConfig struct {
	// ArchiveCount is the number of archives to write
	ArchiveCount int `json:"archive_count" yaml:"archive_count"`

	// RecordsPerArchive is the number of record entries per archive
	RecordsPerArchive int `json:"records_per_archive" yaml:"records_per_archive"`

	// IdentifierLength is the length of record identifiers
	IdentifierLength int `json:"identifier_length" yaml:"identifier_length"`

	// ObjectNameLength is the length of child object names
	ObjectNameLength int `json:"object_name_length" yaml:"object_name_length"`

	// Seed is the base seed for all random draws
	Seed int64 `json:"seed" yaml:"seed"`

	// MaxDuplicateDraws bounds consecutive duplicate identifier draws
	MaxDuplicateDraws int `json:"max_duplicate_draws" yaml:"max_duplicate_draws"`
}

// AggregateConfig holds table aggregation configuration.
type AggregateConfig struct {
	// OutputDir is where 1.csv and 2.csv are written (default: DataDir)
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// CompressResults keeps per-archive row blocks snappy-compressed until reassembly
	CompressResults bool `json:"compress_results" yaml:"compress_results"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is json or console
	Format string `json:"format" yaml:"format"`
}

// ManifestConfig holds run manifest configuration.
type ManifestConfig struct {
	// Enabled controls whether generation runs are recorded
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path (default: DataDir/manifest.db)
	Path string `json:"path" yaml:"path"`
}

// StorageConfig holds publishing storage configuration.
type StorageConfig struct {
	// Type is the storage type: none, local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every published object key
	Prefix string `json:"prefix" yaml:"prefix"`

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
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/zipcorpus",
		Generate: GenerateConfig{
			ArchiveCount:      50,
			RecordsPerArchive: 100,
			IdentifierLength:  16,
			ObjectNameLength:  16,
			Seed:              42,
			MaxDuplicateDraws: record.DefaultMaxDuplicateDraws,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
		Storage: StorageConfig{
			Type: StorageNone,
		},
	}
}

// Resolve fills derived paths based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/zipcorpus"
	}
	if c.Aggregate.OutputDir == "" {
		c.Aggregate.OutputDir = c.DataDir
	}
	if c.Manifest.Path == "" {
		c.Manifest.Path = filepath.Join(c.DataDir, "manifest.db")
	}
	if c.Storage.Type == StorageLocal && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "published")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return invalid("data_dir is required")
	}

	g := c.Generate
	if g.ArchiveCount < 0 {
		return invalid(fmt.Sprintf("generate.archive_count must be >= 0, got %d", g.ArchiveCount))
	}
	if g.RecordsPerArchive < 0 {
		return invalid(fmt.Sprintf("generate.records_per_archive must be >= 0, got %d", g.RecordsPerArchive))
	}
	if g.IdentifierLength < 1 {
		return invalid(fmt.Sprintf("generate.identifier_length must be >= 1, got %d", g.IdentifierLength))
	}
	if g.ObjectNameLength < 1 {
		return invalid(fmt.Sprintf("generate.object_name_length must be >= 1, got %d", g.ObjectNameLength))
	}
	if g.MaxDuplicateDraws < 0 {
		return invalid(fmt.Sprintf("generate.max_duplicate_draws must be >= 0, got %d", g.MaxDuplicateDraws))
	}

	if c.Workers < 0 {
		return invalid(fmt.Sprintf("workers must be >= 0, got %d", c.Workers))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		return invalid(fmt.Sprintf("invalid log format: %s (must be json or console)", c.Log.Format))
	}

	switch c.Storage.Type {
	case StorageNone, StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return invalid("s3.bucket is required when storage type is s3")
		}
	default:
		return invalid(fmt.Sprintf("invalid storage type: %s (must be none, local, or s3)", c.Storage.Type))
	}

	return nil
}

func invalid(msg string) error {
	return apperrors.NewValidationError(apperrors.CodeInvalidConfig, msg)
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
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
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from environment variables.
// Environment variables use the ZIPCORPUS_ prefix. Unparseable numbers are
// reported rather than ignored.
func LoadFromEnv(cfg *Config) error {
	if v := getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Generate configuration
	ints := []struct {
		key string
		dst *int
	}{
		{"ARCHIVE_COUNT", &cfg.Generate.ArchiveCount},
		{"RECORDS_PER_ARCHIVE", &cfg.Generate.RecordsPerArchive},
		{"IDENTIFIER_LENGTH", &cfg.Generate.IdentifierLength},
		{"OBJECT_NAME_LENGTH", &cfg.Generate.ObjectNameLength},
		{"MAX_DUPLICATE_DRAWS", &cfg.Generate.MaxDuplicateDraws},
		{"WORKERS", &cfg.Workers},
	}
	for _, f := range ints {
		if v := getenv(f.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return invalid(fmt.Sprintf("%s%s: %v", EnvPrefix, f.key, err))
			}
			*f.dst = n
		}
	}
	if v := getenv("SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return invalid(fmt.Sprintf("%sSEED: %v", EnvPrefix, err))
		}
		cfg.Generate.Seed = n
	}

	// Aggregate configuration
	if v := getenv("OUTPUT_DIR"); v != "" {
		cfg.Aggregate.OutputDir = v
	}
	if v := getenv("COMPRESS_RESULTS"); v != "" {
		cfg.Aggregate.CompressResults = v == "true" || v == "1"
	}

	// Log configuration
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Manifest configuration
	if v := getenv("MANIFEST_ENABLED"); v != "" {
		cfg.Manifest.Enabled = v == "true" || v == "1"
	}
	if v := getenv("MANIFEST_PATH"); v != "" {
		cfg.Manifest.Path = v
	}

	// Storage configuration
	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getenv("STORAGE_PREFIX"); v != "" {
		cfg.Storage.Prefix = v
	}
	if v := getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := getenv("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	return nil
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Aggregate.OutputDir,
	}
	if c.Manifest.Enabled && c.Manifest.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Manifest.Path))
	}
	if c.Storage.Type == StorageLocal {
		dirs = append(dirs, c.Storage.Path)
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
