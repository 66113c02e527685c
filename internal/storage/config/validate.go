package config

import (
	"fmt"

	"github.com/xtxerr/airq/internal/errors"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case "duckdb":
		if err := c.DuckDB.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("duckdb: %w", err))
		}
	case "mongo":
		if err := c.Mongo.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("backend %q must be one of: duckdb, mongo, memory", c.Backend))
	}

	if err := c.Ingestion.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ingestion: %w", err))
	}

	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errors.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the DuckDB configuration.
func (c *DuckDBConfig) Validate() error {
	if c.Threads < 0 {
		return errors.New("threads must not be negative")
	}
	return nil
}

// Validate checks the MongoDB configuration.
func (c *MongoConfig) Validate() error {
	var errs []error

	if c.URI == "" {
		errs = append(errs, errors.New("uri is required"))
	}

	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}

	if c.Collection == "" {
		errs = append(errs, errors.New("collection is required"))
	}

	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the ingestion configuration.
func (c *IngestionConfig) Validate() error {
	var errs []error

	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}

	if c.FlushTimeout < 0 {
		errs = append(errs, errors.New("flush_timeout must not be negative"))
	}

	if c.MaxConcurrentFiles <= 0 {
		errs = append(errs, errors.New("max_concurrent_files must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}

	if c.PercentileAccuracy <= 0 || c.PercentileAccuracy >= 1 {
		errs = append(errs, errors.New("percentile_accuracy must be between 0 and 1"))
	}

	if c.MaxRows < 0 {
		errs = append(errs, errors.New("max_rows must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	var errs []error

	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty means uncompressed
	}
	if !validAlgorithms[c.Compression] {
		errs = append(errs, fmt.Errorf("compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.RowGroupSize < 0 {
		errs = append(errs, errors.New("row_group_size must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
