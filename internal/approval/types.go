// Package approval decides whether a proposed action may execute. Low
// risk actions are allowed immediately; medium and high risk actions
// suspend the caller until a human decision, a timeout, or session
// teardown resolves them, exactly once.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by gate operations.
var (
	// ErrInvalidAction rejects malformed actions before classification.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidDecision rejects resume calls with an unknown decision value.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrNotPending is returned when resolving an unknown or already
	// resolved approval. Non-fatal: duplicate resume calls hit this.
	ErrNotPending = errors.New("approval is not pending")
)

// Action is one proposed state-changing operation, submitted by the
// agent executor before it runs any effect.
type Action struct {
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id,omitempty"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
	Operation     string          `json:"operation"`
	DocType       string          `json:"doc_type,omitempty"`
	DocName       string          `json:"doc_name,omitempty"`
	Fields        []string        `json:"fields,omitempty"`
	DocumentState string          `json:"document_state,omitempty"`
	Count         int             `json:"count,omitempty"`
}

// Decision is the gate's answer to the executor. Allow=false is an
// absolute stop; the executor must not run the action.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// Response is a human decision arriving through the resume endpoint.
type Response struct {
	Decision  string    `json:"decision"` // "approved" or "rejected"
	Feedback  string    `json:"user_feedback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the decision value.
func (r Response) Validate() error {
	switch r.Decision {
	case "approved", "rejected":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, r.Decision)
	}
}

// preview summarizes the action for the approval prompt.
func (a *Action) preview() string {
	target := a.DocType
	if a.DocName != "" {
		target += " " + a.DocName
	}
	if target == "" {
		target = a.ToolName
	}
	switch {
	case a.Count > 1:
		return fmt.Sprintf("%s %d %s documents", a.Operation, a.Count, a.DocType)
	case len(a.Fields) > 0:
		return fmt.Sprintf("%s %s (%d fields)", a.Operation, target, len(a.Fields))
	default:
		return fmt.Sprintf("%s %s", a.Operation, target)
	}
}
