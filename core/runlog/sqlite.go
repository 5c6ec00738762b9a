package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const runLogSchema = `
CREATE TABLE IF NOT EXISTS run_logs (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts     INTEGER NOT NULL,
	kind   TEXT    NOT NULL,
	run_id TEXT    NOT NULL,
	failed INTEGER NOT NULL DEFAULT 0,
	record TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS run_logs_ts ON run_logs (ts);`

// SQLiteStore keeps run records in a SQLite table. The record itself is
// stored as JSON next to the indexed columns used for filtering.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(runLogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run log schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts the record.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_logs (ts, kind, run_id, failed, record) VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), string(rec.Kind), rec.RunID, rec.Error != "", string(b))
	return err
}

// Query returns the records matching q, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if !q.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.End.UnixNano())
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	query := "SELECT record FROM run_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, id"

	var raw []string
	if err := s.db.SelectContext(ctx, &raw, query, args...); err != nil {
		return nil, err
	}
	res := make([]Record, 0, len(raw))
	for _, data := range raw {
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode run record: %w", err)
		}
		// station outcomes live inside the JSON document
		if q.matchStation(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
