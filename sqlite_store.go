package linesearch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Import SQLite driver for database/sql
)

type sqliteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes Append/Update/Delete
}

const sqliteOpTimeout = 5 * time.Second

// OpenSQLiteStore opens/creates a SQLite DB and ensures schema + PRAGMAs.
func OpenSQLiteStore(dsn string) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty sqlite dsn", ErrInvalidArgument)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ioError("open sqlite", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, ioError("ping sqlite", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, ioError(fmt.Sprintf("set %s", p), err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS query_logs (
  seq            INTEGER PRIMARY KEY AUTOINCREMENT, -- append order
  id             TEXT    NOT NULL,
  query          TEXT    NOT NULL,
  requesting_ip  TEXT    NOT NULL,
  execution_time REAL,                              -- seconds, NULL until completed
  ts             TEXT,                              -- RFC3339Nano, NULL until completed
  status         TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS query_logs_id ON query_logs(id);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, ioError("create schema", err)
	}
	return &sqliteStore{db: db}, nil
}

// Append inserts rec after every existing record.
func (s *sqliteStore) Append(rec LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_logs(id, query, requesting_ip, execution_time, ts, status) VALUES(?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.RequestingIP, nullFloat(rec.ExecutionTime), nullTime(rec.Timestamp), string(rec.Status))
	if err != nil {
		return ioError("insert record", err)
	}
	return nil
}

// ListAll returns every record in append order.
func (s *sqliteStore) ListAll() ([]LogRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, requesting_ip, execution_time, ts, status FROM query_logs ORDER BY seq ASC`)
	if err != nil {
		return nil, ioError("query records", err)
	}
	defer rows.Close()

	out := []LogRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, ioError("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("iterate records", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans id, query, requesting_ip, execution_time, ts, status
// (plus any leading extra destinations).
func scanRecord(row rowScanner, extra ...any) (LogRecord, error) {
	var (
		rec    LogRecord
		execT  sql.NullFloat64
		ts     sql.NullString
		status string
	)
	dest := append(extra, &rec.ID, &rec.Query, &rec.RequestingIP, &execT, &ts, &status)
	if err := row.Scan(dest...); err != nil {
		return rec, err
	}
	if execT.Valid {
		f := execT.Float64
		rec.ExecutionTime = &f
	}
	if ts.Valid {
		t, err := time.Parse(time.RFC3339Nano, ts.String)
		if err != nil {
			return rec, ioError("parse timestamp", err)
		}
		rec.Timestamp = &t
	}
	rec.Status = Status(status)
	return rec, nil
}

// Update applies fields to the first record (in append order) whose id matches.
func (s *sqliteStore) Update(id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, ioError("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT seq, id, query, requesting_ip, execution_time, ts, status FROM query_logs WHERE id = ? ORDER BY seq ASC LIMIT 1`, id),
		&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, ioError("select record", err)
	}

	if err := applyFields(&rec, fields); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE query_logs SET query = ?, requesting_ip = ?, execution_time = ?, ts = ?, status = ? WHERE seq = ?`,
		rec.Query, rec.RequestingIP, nullFloat(rec.ExecutionTime), nullTime(rec.Timestamp), string(rec.Status), seq); err != nil {
		return false, ioError("update record", err)
	}
	if err := tx.Commit(); err != nil {
		return false, ioError("commit", err)
	}
	return true, nil
}

// Delete removes every record whose id matches.
func (s *sqliteStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_logs WHERE id = ?`, id)
	if err != nil {
		return false, ioError("delete record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ioError("rows affected", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *sqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return ioError("close sqlite", err)
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
