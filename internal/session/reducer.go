package session

import (
	"encoding/json"
	"fmt"

	"github.com/agentdesk/actiongate/internal/protocol"
)

// Subscriber is notified once per processed event, after the state has
// been mutated, never before.
type Subscriber func(ev protocol.Event, state *State)

// Reducer folds the ordered event stream into a State. Apply must be
// called from a single goroutine in arrival order.
type Reducer struct {
	state *State
	subs  []Subscriber
}

// NewReducer starts from the empty state.
func NewReducer() *Reducer {
	return &Reducer{state: NewState()}
}

// State exposes the current view.
func (r *Reducer) State() *State {
	return r.state
}

// Subscribe registers a notification callback.
func (r *Reducer) Subscribe(fn Subscriber) {
	r.subs = append(r.subs, fn)
}

// Apply processes one event. Unknown event types are ignored; malformed
// payloads for known types are reported but leave the state untouched.
func (r *Reducer) Apply(ev protocol.Event) error {
	if err := r.apply(ev); err != nil {
		return err
	}
	for _, fn := range r.subs {
		fn(ev, r.state)
	}
	return nil
}

func (r *Reducer) apply(ev protocol.Event) error {
	switch ev.Type {
	case protocol.EventChatMessage:
		var p protocol.ChatMessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode chat_message: %w", err)
		}
		r.applyChatMessage(p)

	case protocol.EventToolCall:
		var p protocol.ToolCallPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode tool_call: %w", err)
		}
		r.applyToolCall(p)

	case protocol.EventToolResult:
		var p protocol.ToolResultPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode tool_result: %w", err)
		}
		r.applyToolResult(p)

	case protocol.EventStateDelta:
		var d protocol.StateDelta
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return fmt.Errorf("decode state_delta: %w", err)
		}
		return r.applyStateDelta(d)

	case protocol.EventError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
		r.state.AgentPhase = PhaseError
		r.state.Err = &p

	case protocol.EventDone:
		r.state.AgentPhase = PhaseDone

	case protocol.EventStatus, protocol.EventApprovalRequest, protocol.EventPing:
		// Carried on the stream but not part of the reduced view.

	default:
		// Unknown event types are tolerated.
	}
	return nil
}

func (r *Reducer) applyChatMessage(p protocol.ChatMessagePayload) {
	switch p.Phase {
	case protocol.PhaseStart:
		r.state.AgentPhase = PhaseThinking
		role := p.Role
		if role == "" {
			role = "assistant"
		}
		r.state.Messages = append(r.state.Messages, &Message{ID: p.MessageID, Role: role})
	case protocol.PhaseContent:
		// Content with no open message is dropped, not an error.
		if msg := r.state.lastMessage(); msg != nil {
			msg.Content += p.Content
		}
	case protocol.PhaseEnd:
		r.state.AgentPhase = PhaseIdle
	}
}

func (r *Reducer) applyToolCall(p protocol.ToolCallPayload) {
	switch p.Phase {
	case protocol.PhaseStart:
		r.state.AgentPhase = PhaseWorking
		r.state.ToolCalls[p.CallID] = &ToolCall{
			ID:     p.CallID,
			Name:   p.Name,
			Status: ToolStatusRunning,
			Args:   make(map[string]any),
		}
	case protocol.PhaseArgsDelta:
		tc, ok := r.state.ToolCalls[p.CallID]
		if !ok {
			return
		}
		var partial map[string]any
		if err := json.Unmarshal(p.ArgsDelta, &partial); err != nil {
			return
		}
		for k, v := range partial {
			tc.Args[k] = v
		}
	}
}

func (r *Reducer) applyToolResult(p protocol.ToolResultPayload) {
	tc, ok := r.state.ToolCalls[p.CallID]
	if !ok {
		return
	}
	if p.Status == ToolStatusError || p.Error != "" {
		tc.Status = ToolStatusError
		tc.Error = p.Error
	} else {
		tc.Status = ToolStatusCompleted
	}
	tc.Output = p.Output
}

// applyStateDelta mutates the shared key-path tree. Intermediate
// containers are created as needed. Deltas are not idempotent: applying
// the same append twice appends twice.
func (r *Reducer) applyStateDelta(d protocol.StateDelta) error {
	if len(d.Path) == 0 {
		return fmt.Errorf("state_delta path must be non-empty")
	}

	parent := r.state.SharedState
	for _, key := range d.Path[:len(d.Path)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			parent[key] = child
		}
		parent = child
	}
	leaf := d.Path[len(d.Path)-1]

	switch d.Operation {
	case protocol.DeltaSet:
		value, err := decodeValue(d.Value)
		if err != nil {
			return err
		}
		parent[leaf] = value

	case protocol.DeltaDelete:
		delete(parent, leaf)

	case protocol.DeltaAppend:
		value, err := decodeValue(d.Value)
		if err != nil {
			return err
		}
		list, _ := parent[leaf].([]any)
		parent[leaf] = append(list, value)

	case protocol.DeltaPatch:
		value, err := decodeValue(d.Value)
		if err != nil {
			return err
		}
		patch, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("patch value must be an object")
		}
		target, ok := parent[leaf].(map[string]any)
		if !ok {
			target = make(map[string]any)
			parent[leaf] = target
		}
		for k, v := range patch {
			target[k] = v
		}

	default:
		return fmt.Errorf("unknown delta operation %q", d.Operation)
	}
	return nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode delta value: %w", err)
	}
	return v, nil
}
