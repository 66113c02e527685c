// Package config provides configuration defaults and utilities
// for the airq application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command line flags.
package config

import "time"

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultBackend is the store collaborator used when none is configured.
	// Override via config: backend (duckdb, mongo, memory)
	DefaultBackend = "duckdb"

	// DefaultDuckDBPath is the database file. An empty path runs in memory.
	// Override via config: duckdb.path
	DefaultDuckDBPath = "airq.duckdb"

	// DefaultDuckDBMemoryLimit caps DuckDB working memory. Larger intermediate
	// state spills to duckdb.temp_directory.
	// Override via config: duckdb.memory_limit
	DefaultDuckDBMemoryLimit = "2GB"

	// DefaultMongoURI is the MongoDB connection string.
	// Override via config: mongo.uri
	DefaultMongoURI = "mongodb://localhost:27017"

	// DefaultMongoDatabase is the MongoDB database name.
	// Override via config: mongo.database
	DefaultMongoDatabase = "airq"

	// DefaultMongoCollection holds one document per reading.
	// Override via config: mongo.collection
	DefaultMongoCollection = "air_quality"

	// DefaultConnectTimeout bounds the initial store connection and ping.
	// Override via config: mongo.connect_timeout
	DefaultConnectTimeout = 10 * time.Second
)

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultBatchSize is the number of readings persisted per flush.
	// Memory use of one import is bounded by one batch plus one row.
	// Override via config: ingestion.batch_size
	DefaultBatchSize = 1000

	// DefaultFlushTimeout bounds a single flush call. Zero disables the bound.
	// Override via config: ingestion.flush_timeout
	DefaultFlushTimeout = 60 * time.Second

	// DefaultMaxConcurrentFiles limits how many files one import command
	// streams at the same time. Each file is an independent pipeline.
	// Override via config: ingestion.max_concurrent_files
	DefaultMaxConcurrentFiles = 4

	// DefaultMissingSentinel is the value the source dataset writes for a
	// missing measurement.
	// Override via config: ingestion.missing_sentinel
	DefaultMissingSentinel = -200.0
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryTimeout bounds a single query.
	// Override via config: query.timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultPercentileAccuracy is the relative accuracy of DDSketch
	// percentile estimates (0.01 = 1% error).
	// Override via config: query.percentile_accuracy
	DefaultPercentileAccuracy = 0.01

	// DefaultMaxRows caps the readings returned by a range query. Zero is unlimited.
	// Override via config: query.max_rows
	DefaultMaxRows = 0

	// DefaultInterval is the time-series bucket granularity.
	DefaultInterval = "daily"

	// DefaultSeriesReducer is applied per bucket in time-series queries.
	DefaultSeriesReducer = "sum"

	// DefaultSummaryReducer is applied per field in summary queries.
	DefaultSummaryReducer = "avg"
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the Parquet codec for archives.
	// Override via config: export.compression (snappy, zstd, lz4, gzip, none)
	DefaultExportCompression = "zstd"

	// DefaultExportRowGroupSize is the number of readings per Parquet row group.
	DefaultExportRowGroupSize = 100000
)
