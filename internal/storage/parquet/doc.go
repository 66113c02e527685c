// Package parquet implements Parquet archives of readings.
//
// The package provides:
//   - Writer for exporting readings from a store
//   - Reader for restoring an archive through the ingestion pipeline
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//   - Type conversion between Reading and ReadingRow
package parquet
