// Package audit persists every approval resolution. Writers never block
// the gate and their failures never alter a decision.
package audit

import "time"

// DecisionWriter is the sink for approval decision events.
// Write() must NEVER block the caller.
type DecisionWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent records one resolved approval, whether auto-allowed,
// decided by a human, timed out, or force-rejected at teardown.
type DecisionEvent struct {
	RequestID     string
	CorrelationID string
	SessionID     string
	UserID        string
	Timestamp     time.Time
	ToolName      string
	ToolInputJSON string
	Operation     string
	DocType       string
	RiskLevel     string
	RiskScore     float64
	Decision      string // "allowed" or "denied"
	Reason        string
	AutoApproved  bool
	Feedback      string
	RequestedAt   time.Time
	ResolvedAt    time.Time
	WaitMs        float32
	Source        string // "auto", "user", "timeout", "session_teardown", "canceled"
}
