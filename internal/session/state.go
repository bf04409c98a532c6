// Package session rebuilds a client's view of an agent session purely
// from the ordered event stream. The reducer is the only writer; it
// applies one event at a time, so no locking is needed on the state.
package session

import (
	"encoding/json"

	"github.com/agentdesk/actiongate/internal/protocol"
)

// Phase is the coarse agent lifecycle phase.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseThinking Phase = "thinking"
	PhaseWorking  Phase = "working"
	PhaseError    Phase = "error"
	PhaseDone     Phase = "done"
)

// Tool call statuses in the ledger.
const (
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// Message is one chat message in arrival order.
type Message struct {
	ID      string
	Role    string
	Content string
}

// ToolCall is one ledger entry, keyed by call ID.
type ToolCall struct {
	ID     string
	Name   string
	Status string
	Args   map[string]any
	Output json.RawMessage
	Error  string
}

// State is the reconstructed session view. It has no life beyond the
// stream that built it.
type State struct {
	AgentPhase  Phase
	Messages    []*Message
	ToolCalls   map[string]*ToolCall
	SharedState map[string]any
	Err         *protocol.ErrorPayload
}

// NewState returns the empty pre-stream state.
func NewState() *State {
	return &State{
		AgentPhase:  PhaseIdle,
		ToolCalls:   make(map[string]*ToolCall),
		SharedState: make(map[string]any),
	}
}

// lastMessage returns the most recent message, or nil.
func (s *State) lastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}
