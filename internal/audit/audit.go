// Package audit persists a trail of every rule catalog mutation (add,
// update, delete, touch) and alert state transition to sqlite, using an
// instance-scoped connection and a uuid correlation id per request.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Log is one audited event.
type Log struct {
	ID            int64
	CorrelationID string
	Action        string // e.g. "rule.add", "rule.delete", "alert.ack"
	Actor         string // mailbox sender identity, or "" for internal
	Subject       string // rule name or alert id
	Detail        string
	CreatedAt     time.Time
}

// Filter narrows Query results.
type Filter struct {
	Action  string
	Subject string
	From    time.Time
	To      time.Time
	Limit   int
}

// Store wraps one sqlite connection dedicated to the audit trail.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and connects to the sqlite database at dbPath,
// running its migration on first use.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create data directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			correlation_id TEXT NOT NULL,
			action         TEXT NOT NULL,
			actor          TEXT,
			subject        TEXT,
			detail         TEXT,
			created_at     DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_log_subject ON audit_log(subject)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one audit entry, generating a correlation id if one is
// not supplied by the caller's request context.
func (s *Store) Record(correlationID, action, actor, subject, detail string) error {
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_log (correlation_id, action, actor, subject, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, correlationID, action, actor, subject, detail, time.Now())
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Query returns audit entries matching filter, most recent first.
func (s *Store) Query(filter Filter) ([]Log, error) {
	query := "SELECT id, correlation_id, action, actor, subject, detail, created_at FROM audit_log WHERE 1=1"
	var args []interface{}

	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.Subject != "" {
		query += " AND subject = ?"
		args = append(args, filter.Subject)
	}
	if !filter.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.To)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var l Log
		var actor, subject, detail sql.NullString
		if err := rows.Scan(&l.ID, &l.CorrelationID, &l.Action, &actor, &subject, &detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		l.Actor = actor.String
		l.Subject = subject.String
		l.Detail = detail.String
		out = append(out, l)
	}
	return out, rows.Err()
}
