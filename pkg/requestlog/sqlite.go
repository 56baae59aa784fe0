package requestlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore archives records in a SQLite database.
// Writes are synchronous; wrap it in Async before handing it to the interceptor.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and prepares the
// schema. Use ":memory:" for a private in-memory database.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening request log database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and migrates the schema.
func NewSQLiteStore(db *sql.DB, log *slog.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating request log database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS request_log (
        seq          INTEGER PRIMARY KEY AUTOINCREMENT,
        id           TEXT NOT NULL UNIQUE,
        method       TEXT NOT NULL,
        url          TEXT NOT NULL,
        status       INTEGER NOT NULL,
        timestamp_ms INTEGER NOT NULL,
        duration_ms  INTEGER NOT NULL,
        is_mock      INTEGER NOT NULL,
        rule_id      TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_request_log_rule ON request_log(rule_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Add inserts rec. Failures are logged, never returned.
func (s *SQLiteStore) Add(rec Record) {
	if err := s.Insert(context.Background(), rec); err != nil {
		s.log.Warn("failed to archive request record", "url", rec.URL, "error", err)
	}
}

// Insert stores rec, assigning an ID and timestamp when missing.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.TimestampMs == 0 {
		rec.TimestampMs = time.Now().UnixMilli()
	}
	query := `INSERT INTO request_log (
		id, method, url, status, timestamp_ms, duration_ms, is_mock, rule_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Method, rec.URL, rec.Status, rec.TimestampMs, rec.DurationMs, rec.IsMock, rec.RuleID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, method, url, status, timestamp_ms, duration_ms, is_mock, rule_id FROM request_log`

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(id string) (Record, bool) {
	row := s.db.QueryRowContext(context.Background(), selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("failed to read request record", "id", id, "error", err)
		}
		return Record{}, false
	}
	return rec, true
}

// List returns records newest first, optionally filtered.
// Query failures are logged and yield an empty result.
func (s *SQLiteStore) List(filter *Filter) []Record {
	recs, err := s.Query(context.Background(), filter)
	if err != nil {
		s.log.Warn("failed to list request records", "error", err)
		return []Record{}
	}
	return recs
}

// Query returns records newest first, optionally filtered.
func (s *SQLiteStore) Query(ctx context.Context, filter *Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if filter != nil {
		if filter.Method != "" {
			where = append(where, "method = ? COLLATE NOCASE")
			args = append(args, filter.Method)
		}
		if filter.URL != "" {
			where = append(where, "instr(url, ?) > 0")
			args = append(args, filter.URL)
		}
		if filter.RuleID != "" {
			where = append(where, "rule_id = ?")
			args = append(args, filter.RuleID)
		}
		if filter.Status != 0 {
			where = append(where, "status = ?")
			args = append(args, filter.Status)
		}
		if filter.IsMock != nil {
			where = append(where, "is_mock = ?")
			args = append(args, *filter.IsMock)
		}
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"

	limit, offset := -1, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		if filter.Offset > 0 {
			offset = filter.Offset
		}
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	recs := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// Clear removes all records.
func (s *SQLiteStore) Clear() {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM request_log`); err != nil {
		s.log.Warn("failed to clear request records", "error", err)
	}
}

// Count returns the number of records.
func (s *SQLiteStore) Count() int {
	var n int
	if err := s.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM request_log`).Scan(&n); err != nil {
		s.log.Warn("failed to count request records", "error", err)
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Method, &rec.URL, &rec.Status, &rec.TimestampMs, &rec.DurationMs, &rec.IsMock, &rec.RuleID)
	return rec, err
}

var _ Store = (*SQLiteStore)(nil)
