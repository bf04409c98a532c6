// Package pending persists in-flight approval requests. Resolution is a
// conditional write: the first caller to resolve a key wins and every
// later attempt is reported as a miss, which is what makes approval
// decisions exactly-once even across races between a human decision,
// the timeout, and session teardown.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrDuplicateKey is returned by Insert when the (correlation_id,
// requested_at) pair already exists.
var ErrDuplicateKey = errors.New("pending approval already exists")

// Statuses of a stored record.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Record is one persisted approval request. CorrelationID plus
// RequestedAt (unix milliseconds) form the unique key for its lifetime.
type Record struct {
	CorrelationID    string
	RequestedAt      int64
	SessionID        string
	ToolName         string
	ToolInput        json.RawMessage
	Operation        string
	DocType          string
	RiskLevel        string
	RiskScore        float64
	OperationPreview string
	Reasoning        string
	Status           string
	Decision         string
	Feedback         string
	ResolvedAt       time.Time
	ExpiresAt        time.Time
}

// Resolution is the outcome written by the winning resolver.
type Resolution struct {
	Decision   string // "approved" or "rejected"
	Feedback   string
	Reason     string // "user", "timeout", "session_teardown", "canceled"
	ResolvedAt time.Time
}

// Approved reports whether the resolution allows the action.
func (r Resolution) Approved() bool {
	return r.Decision == StatusApproved
}

// Store is the keyed durable store behind the approval gate.
type Store interface {
	// Insert persists a new pending record. Returns ErrDuplicateKey if
	// the key is already present.
	Insert(ctx context.Context, rec *Record) error

	// Resolve performs a conditional write: it marks the record
	// resolved only if it is still pending. Returns true when this
	// caller won, false when the record is missing or already resolved.
	Resolve(ctx context.Context, correlationID string, requestedAt int64, res Resolution) (bool, error)

	// Get returns the record for a key, or nil if absent.
	Get(ctx context.Context, correlationID string, requestedAt int64) (*Record, error)

	// ListPending returns all unresolved records for a session.
	ListPending(ctx context.Context, sessionID string) ([]*Record, error)

	// DeleteExpired removes resolved records older than the cutoff and
	// returns how many were deleted. Pending records are never reaped
	// here; the gate's timeout resolves them first.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// Close releases the underlying resources.
	Close() error
}
