package pending

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists approval records in a local SQLite database.
// It is the default durable store when no Postgres DSN is configured:
// pending approvals survive a process restart on a single host.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps the resume endpoint from blocking behind gate inserts.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS pending_approvals (
		correlation_id TEXT NOT NULL,
		requested_at INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		tool_input TEXT,
		operation TEXT,
		doc_type TEXT,
		risk_level TEXT NOT NULL,
		risk_score REAL NOT NULL,
		operation_preview TEXT,
		reasoning TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		decision TEXT,
		feedback TEXT,
		resolved_at INTEGER,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (correlation_id, requested_at)
	);
	CREATE INDEX IF NOT EXISTS idx_pending_session ON pending_approvals(session_id) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_pending_resolved ON pending_approvals(resolved_at) WHERE status != 'pending';
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_approvals (
			correlation_id, requested_at, session_id, tool_name, tool_input,
			operation, doc_type, risk_level, risk_score,
			operation_preview, reasoning, status, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		rec.CorrelationID, rec.RequestedAt, rec.SessionID, rec.ToolName, string(rec.ToolInput),
		rec.Operation, rec.DocType, rec.RiskLevel, rec.RiskScore,
		rec.OperationPreview, rec.Reasoning, rec.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert pending approval: %w", err)
	}
	return nil
}

// Resolve is a conditional update guarded by status='pending'; the row
// count tells us whether this caller won the write.
func (s *SQLiteStore) Resolve(ctx context.Context, correlationID string, requestedAt int64, res Resolution) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_approvals
		SET status = ?, decision = ?, feedback = ?, resolved_at = ?
		WHERE correlation_id = ? AND requested_at = ? AND status = 'pending'`,
		res.Decision, res.Decision, res.Feedback, res.ResolvedAt.UnixMilli(),
		correlationID, requestedAt,
	)
	if err != nil {
		return false, fmt.Errorf("resolve pending approval: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve pending approval: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Get(ctx context.Context, correlationID string, requestedAt int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT correlation_id, requested_at, session_id, tool_name, tool_input,
		       operation, doc_type, risk_level, risk_score,
		       operation_preview, reasoning, status,
		       COALESCE(decision, ''), COALESCE(feedback, ''),
		       COALESCE(resolved_at, 0), expires_at
		FROM pending_approvals
		WHERE correlation_id = ? AND requested_at = ?`,
		correlationID, requestedAt,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending approval: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, sessionID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT correlation_id, requested_at, session_id, tool_name, tool_input,
		       operation, doc_type, risk_level, risk_score,
		       operation_preview, reasoning, status,
		       COALESCE(decision, ''), COALESCE(feedback, ''),
		       COALESCE(resolved_at, 0), expires_at
		FROM pending_approvals
		WHERE session_id = ? AND status = 'pending'
		ORDER BY requested_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending approvals: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_approvals
		WHERE status != 'pending' AND resolved_at < ?`,
		before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired approvals: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var rec Record
	var toolInput string
	var resolvedAt, expiresAt int64
	if err := sc.Scan(
		&rec.CorrelationID, &rec.RequestedAt, &rec.SessionID, &rec.ToolName, &toolInput,
		&rec.Operation, &rec.DocType, &rec.RiskLevel, &rec.RiskScore,
		&rec.OperationPreview, &rec.Reasoning, &rec.Status,
		&rec.Decision, &rec.Feedback,
		&resolvedAt, &expiresAt,
	); err != nil {
		return nil, err
	}
	if toolInput != "" {
		rec.ToolInput = []byte(toolInput)
	}
	if resolvedAt > 0 {
		rec.ResolvedAt = time.UnixMilli(resolvedAt)
	}
	rec.ExpiresAt = time.UnixMilli(expiresAt)
	return &rec, nil
}
