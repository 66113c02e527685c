package config

import (
	"fmt"
	"os"
	"time"

	defaults "github.com/xtxerr/airq/config"
	"gopkg.in/yaml.v3"
)

// Config represents the complete airq configuration.
type Config struct {
	// Backend selects the store collaborator: duckdb, mongo or memory.
	Backend string `yaml:"backend"`

	// DuckDB configures the embedded DuckDB store.
	DuckDB DuckDBConfig `yaml:"duckdb"`

	// Mongo configures the MongoDB store.
	Mongo MongoConfig `yaml:"mongo"`

	// Ingestion configures the ingestion pipeline.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Query configures the query engine.
	Query QueryConfig `yaml:"query"`

	// Export configures Parquet archives.
	Export ExportConfig `yaml:"export"`

	// S3 configures s3:// sources.
	S3 S3Config `yaml:"s3"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// DuckDBConfig configures the embedded DuckDB store.
type DuckDBConfig struct {
	// Path is the database file. Empty runs in memory.
	Path string `yaml:"path"`

	// MemoryLimit is the DuckDB memory limit.
	// Format: "512MB", "2GB"
	MemoryLimit string `yaml:"memory_limit"`

	// TempDirectory receives spilled intermediate state of large aggregations.
	TempDirectory string `yaml:"temp_directory"`

	// Threads limits DuckDB worker threads. Zero keeps the DuckDB default.
	Threads int `yaml:"threads"`
}

// MongoConfig configures the MongoDB store.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	// BatchSize is the number of readings persisted per flush.
	BatchSize int `yaml:"batch_size"`

	// FlushTimeout bounds one flush call. Zero disables the bound.
	FlushTimeout time.Duration `yaml:"flush_timeout"`

	// MaxConcurrentFiles limits parallel file imports.
	MaxConcurrentFiles int `yaml:"max_concurrent_files"`

	// MissingSentinel is read as a missing value.
	MissingSentinel float64 `yaml:"missing_sentinel"`

	// DisableSentinel keeps sentinel values as ordinary numbers.
	DisableSentinel bool `yaml:"disable_sentinel"`
}

// Sentinel returns the configured sentinel, or nil if disabled.
func (c *IngestionConfig) Sentinel() *float64 {
	if c.DisableSentinel {
		return nil
	}
	s := c.MissingSentinel
	return &s
}

// QueryConfig configures the query engine.
type QueryConfig struct {
	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// AllowDiskUse lets the store spill large aggregations to disk.
	AllowDiskUse bool `yaml:"allow_disk_use"`

	// PercentileAccuracy is the DDSketch relative accuracy.
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`

	// MaxRows caps range query results. Zero is unlimited.
	MaxRows int `yaml:"max_rows"`
}

// ExportConfig configures Parquet archives.
type ExportConfig struct {
	// Compression is the codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`

	// RowGroupSize is the number of readings per row group.
	RowGroupSize int `yaml:"row_group_size"`
}

// S3Config configures s3:// sources.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches from text to JSON output.
	JSON bool `yaml:"json"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: defaults.DefaultBackend,
		DuckDB: DuckDBConfig{
			Path:        defaults.DefaultDuckDBPath,
			MemoryLimit: defaults.DefaultDuckDBMemoryLimit,
		},
		Mongo: MongoConfig{
			URI:            defaults.DefaultMongoURI,
			Database:       defaults.DefaultMongoDatabase,
			Collection:     defaults.DefaultMongoCollection,
			ConnectTimeout: defaults.DefaultConnectTimeout,
		},
		Ingestion: IngestionConfig{
			BatchSize:          defaults.DefaultBatchSize,
			FlushTimeout:       defaults.DefaultFlushTimeout,
			MaxConcurrentFiles: defaults.DefaultMaxConcurrentFiles,
			MissingSentinel:    defaults.DefaultMissingSentinel,
		},
		Query: QueryConfig{
			Timeout:            defaults.DefaultQueryTimeout,
			AllowDiskUse:       true,
			PercentileAccuracy: defaults.DefaultPercentileAccuracy,
			MaxRows:            defaults.DefaultMaxRows,
		},
		Export: ExportConfig{
			Compression:  defaults.DefaultExportCompression,
			RowGroupSize: defaults.DefaultExportRowGroupSize,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
