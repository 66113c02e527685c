// Package storage implements the air-quality reading store and its query
// surface.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Source    │────▶│  Ingestion  │────▶│   Backend   │
//	│ (file / S3) │     │  Pipeline   │     │ duck/mongo/ │
//	└─────────────┘     └─────────────┘     │   memory    │
//	                                        └─────────────┘
//	                                               ▲
//	┌─────────────┐     ┌─────────────┐            │
//	│   Planner   │────▶│  Executor   │────────────┘
//	└─────────────┘     └─────────────┘
//
// The storage system provides:
//   - Streaming ingestion of semicolon-delimited files with bounded memory
//   - Best-effort batch persistence with partial-failure accounting
//   - Range, time-series, summary and percentile queries
//   - DDSketch-based percentile calculation
//   - Parquet archive export and restore
package storage
