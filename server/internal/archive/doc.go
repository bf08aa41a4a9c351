// Package archive keeps JSON snapshots of statistics reports in a blob
// store: a local directory, an S3-compatible bucket, or memory.
//
// Snapshots are written under reports/YYYY/MM/DD/ with a UTC timestamp file
// name, so lexical key order is chronological order.
package archive
