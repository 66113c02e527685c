// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Field: One of the fixed sensor measurements, described by a FieldDescriptor
//   - Reading: A single timestamped sample with an optional value per field
//   - Interval: Time-series bucket granularity (hourly, daily, monthly, yearly)
//   - Reducer: Aggregation function applied per field (sum, avg, min, max)
//   - Bucket / Summary: Shaped aggregation results
package types
