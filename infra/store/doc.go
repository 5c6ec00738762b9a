// Package store reads station observations from the ingestion database.
// The same queries run against PostgreSQL (lib/pq) and SQLite (modernc).
package store
