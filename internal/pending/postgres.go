package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists approval records in Postgres. This is the
// deployment store: with it, pending approvals survive process restarts
// and the resume call may land on a different instance than the one
// holding the suspended request.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open *sql.DB (pgx stdlib driver) and
// ensures the schema exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS pending_approvals (
		correlation_id TEXT NOT NULL,
		requested_at BIGINT NOT NULL,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		tool_input TEXT,
		operation TEXT,
		doc_type TEXT,
		risk_level TEXT NOT NULL,
		risk_score DOUBLE PRECISION NOT NULL,
		operation_preview TEXT,
		reasoning TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		decision TEXT,
		feedback TEXT,
		resolved_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (correlation_id, requested_at)
	);
	CREATE INDEX IF NOT EXISTS idx_pending_session
		ON pending_approvals (session_id) WHERE status = 'pending';
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_approvals (
			correlation_id, requested_at, session_id, tool_name, tool_input,
			operation, doc_type, risk_level, risk_score,
			operation_preview, reasoning, status, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', $12)`,
		rec.CorrelationID, rec.RequestedAt, rec.SessionID, rec.ToolName, string(rec.ToolInput),
		rec.Operation, rec.DocType, rec.RiskLevel, rec.RiskScore,
		rec.OperationPreview, rec.Reasoning, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert pending approval: %w", err)
	}
	return nil
}

// Resolve relies on the conditional UPDATE ... WHERE status='pending'
// for the first-writer-wins guarantee across instances.
func (s *PostgresStore) Resolve(ctx context.Context, correlationID string, requestedAt int64, res Resolution) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_approvals
		SET status = $1, decision = $1, feedback = $2, resolved_at = $3
		WHERE correlation_id = $4 AND requested_at = $5 AND status = 'pending'`,
		res.Decision, res.Feedback, res.ResolvedAt,
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

func (s *PostgresStore) Get(ctx context.Context, correlationID string, requestedAt int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT correlation_id, requested_at, session_id, tool_name, COALESCE(tool_input, ''),
		       COALESCE(operation, ''), COALESCE(doc_type, ''), risk_level, risk_score,
		       COALESCE(operation_preview, ''), COALESCE(reasoning, ''), status,
		       COALESCE(decision, ''), COALESCE(feedback, ''),
		       resolved_at, expires_at
		FROM pending_approvals
		WHERE correlation_id = $1 AND requested_at = $2`,
		correlationID, requestedAt,
	)
	rec, err := scanPGRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending approval: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, sessionID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT correlation_id, requested_at, session_id, tool_name, COALESCE(tool_input, ''),
		       COALESCE(operation, ''), COALESCE(doc_type, ''), risk_level, risk_score,
		       COALESCE(operation_preview, ''), COALESCE(reasoning, ''), status,
		       COALESCE(decision, ''), COALESCE(feedback, ''),
		       resolved_at, expires_at
		FROM pending_approvals
		WHERE session_id = $1 AND status = 'pending'
		ORDER BY requested_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending approvals: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_approvals
		WHERE status != 'pending' AND resolved_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired approvals: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPGRecord(sc scanner) (*Record, error) {
	var rec Record
	var toolInput string
	var resolvedAt sql.NullTime
	if err := sc.Scan(
		&rec.CorrelationID, &rec.RequestedAt, &rec.SessionID, &rec.ToolName, &toolInput,
		&rec.Operation, &rec.DocType, &rec.RiskLevel, &rec.RiskScore,
		&rec.OperationPreview, &rec.Reasoning, &rec.Status,
		&rec.Decision, &rec.Feedback,
		&resolvedAt, &rec.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if toolInput != "" {
		rec.ToolInput = []byte(toolInput)
	}
	if resolvedAt.Valid {
		rec.ResolvedAt = resolvedAt.Time
	}
	return &rec, nil
}
