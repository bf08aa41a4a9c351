// Package store persists customer records and API users.
//
// Backends:
//   - Memory: mutex-guarded maps, used by default and in tests.
//   - SQL: database/sql over SQLite (modernc.org/sqlite) or Postgres
//     (pgx stdlib driver), with the schema applied on open.
//
// Open selects the backend from config.StorageConfig. Every backend stamps
// timestamps from an injectable clock and hides soft-deleted customers from
// all reads except the duplicate-identity check.
package store
