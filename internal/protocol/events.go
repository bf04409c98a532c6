// Package protocol defines the wire-level event types streamed from the
// gate to UI clients. The set of event types is closed; consumers must
// ignore types they do not recognize.
package protocol

import "encoding/json"

// Event type markers. One of these appears on the "event:" line of every
// stream frame.
const (
	EventStatus          = "status"
	EventChatMessage     = "chat_message"
	EventToolCall        = "tool_call"
	EventToolResult      = "tool_result"
	EventApprovalRequest = "approval_request"
	EventStateDelta      = "state_delta"
	EventError           = "error"
	EventDone            = "done"
	EventPing            = "ping"
)

// Phases carried inside chat_message and tool_call payloads.
const (
	PhaseStart     = "start"
	PhaseContent   = "content"
	PhaseEnd       = "end"
	PhaseArgsDelta = "args_delta"
)

// Event is one decoded stream frame: the type marker plus its raw JSON
// payload. Consumers unmarshal Data into the payload struct matching Type.
type Event struct {
	Type string
	Data json.RawMessage
}

// StatusPayload reports a coarse agent phase change.
type StatusPayload struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatMessagePayload carries one phase of an assistant message:
// start opens a new message, content appends text, end closes it.
type ChatMessagePayload struct {
	Phase     string `json:"phase"`
	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ToolCallPayload carries one phase of a tool invocation: start opens a
// ledger entry, args_delta merges partial arguments into it.
type ToolCallPayload struct {
	Phase     string          `json:"phase"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name,omitempty"`
	ArgsDelta json.RawMessage `json:"args_delta,omitempty"`
}

// ToolResultPayload completes a tool invocation.
type ToolResultPayload struct {
	CallID string          `json:"call_id"`
	Status string          `json:"status"` // "completed" or "error"
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ApprovalRequestPayload prompts the UI for a human decision on a
// suspended action. CorrelationID plus RequestedAt identify the pending
// approval for the resume round-trip.
type ApprovalRequestPayload struct {
	CorrelationID    string          `json:"correlation_id"`
	RequestedAt      int64           `json:"timestamp"` // unix milliseconds
	ToolName         string          `json:"tool_name"`
	ToolInput        json.RawMessage `json:"tool_input,omitempty"`
	RiskLevel        string          `json:"risk_level"`
	OperationPreview string          `json:"operation_preview"`
	Reasoning        string          `json:"reasoning"`
}

// Delta operations applied to the shared state tree.
const (
	DeltaSet    = "set"
	DeltaDelete = "delete"
	DeltaAppend = "append"
	DeltaPatch  = "patch"
)

// StateDelta is one incremental mutation of the shared state tree.
// Path must be non-empty. Append is not idempotent: replaying the same
// delta appends another element.
type StateDelta struct {
	Path      []string        `json:"path"`
	Operation string          `json:"operation"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// ErrorPayload reports a terminal stream error.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// DonePayload signals normal completion of the session's run.
type DonePayload struct {
	Status string `json:"status,omitempty"`
}

// PingPayload is the keep-alive frame body.
type PingPayload struct {
	Status string `json:"status"`
}
