// Package runlog keeps an append-only history of training and predict runs.
// Records are derived from bus events and can be stored as rotating JSONL
// files or in SQLite.
package runlog
