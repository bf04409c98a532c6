// Package stream encodes protocol events into Server-Sent Events frames
// over a long-lived connection, one frame per emit call, flushed
// immediately so the first meaningful frame reaches the client fast.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/agentdesk/actiongate/internal/protocol"
	"go.uber.org/zap"
)

// DefaultKeepAliveInterval is how long the stream may sit idle before a
// ping frame goes out.
const DefaultKeepAliveInterval = 30 * time.Second

// Emitter writes protocol frames to one open connection. All methods
// are safe for concurrent use. After Close (explicit or forced by a
// write failure) every emit is a silent no-op.
type Emitter struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher // nil when the writer cannot flush
	closed   bool
	lastSend time.Time
	done     chan struct{}
	logger   *zap.Logger
}

// NewEmitter wraps w. If w implements http.Flusher each frame is
// flushed as it is written. A keepAlive of 0 selects the default
// interval; a negative keepAlive disables pings (used in tests).
func NewEmitter(w io.Writer, keepAlive time.Duration, logger *zap.Logger) *Emitter {
	e := &Emitter{
		w:        w,
		lastSend: time.Now(),
		done:     make(chan struct{}),
		logger:   logger,
	}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}

	if keepAlive == 0 {
		keepAlive = DefaultKeepAliveInterval
	}
	if keepAlive > 0 {
		go e.keepAliveLoop(keepAlive)
	}
	return e
}

// keepAliveLoop pings whenever the connection has been idle for a full
// interval. It exits when the emitter closes.
func (e *Emitter) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			idle := !e.closed && time.Since(e.lastSend) >= interval
			e.mu.Unlock()
			if idle {
				e.emit(protocol.EventPing, protocol.PingPayload{Status: "alive"})
			}
		}
	}
}

// emit writes one frame: event-type line, JSON data line, blank
// terminator. Emits after close are no-ops; a write failure closes the
// emitter so later calls become no-ops too.
func (e *Emitter) emit(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		e.logger.Warn("stream write failed, closing emitter",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		e.closeLocked()
		return nil
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	e.lastSend = time.Now()
	return nil
}

// EmitStatus reports an agent phase change.
func (e *Emitter) EmitStatus(p protocol.StatusPayload) error {
	return e.emit(protocol.EventStatus, p)
}

// EmitMessage carries one phase of an assistant chat message.
func (e *Emitter) EmitMessage(p protocol.ChatMessagePayload) error {
	return e.emit(protocol.EventChatMessage, p)
}

// EmitApprovalRequest prompts the client for a decision on a suspended action.
func (e *Emitter) EmitApprovalRequest(p protocol.ApprovalRequestPayload) error {
	return e.emit(protocol.EventApprovalRequest, p)
}

// EmitToolCallStart opens a tool call ledger entry on the client.
func (e *Emitter) EmitToolCallStart(callID, name string) error {
	return e.emit(protocol.EventToolCall, protocol.ToolCallPayload{
		Phase:  protocol.PhaseStart,
		CallID: callID,
		Name:   name,
	})
}

// EmitToolCallDelta streams partial arguments for an open tool call.
func (e *Emitter) EmitToolCallDelta(callID string, argsDelta json.RawMessage) error {
	return e.emit(protocol.EventToolCall, protocol.ToolCallPayload{
		Phase:     protocol.PhaseArgsDelta,
		CallID:    callID,
		ArgsDelta: argsDelta,
	})
}

// EmitToolCallResult completes a tool call.
func (e *Emitter) EmitToolCallResult(p protocol.ToolResultPayload) error {
	return e.emit(protocol.EventToolResult, p)
}

// EmitStateDelta applies one mutation to the client's shared state tree.
func (e *Emitter) EmitStateDelta(d protocol.StateDelta) error {
	return e.emit(protocol.EventStateDelta, d)
}

// EmitError reports a terminal error.
func (e *Emitter) EmitError(p protocol.ErrorPayload) error {
	return e.emit(protocol.EventError, p)
}

// EmitDone signals normal completion.
func (e *Emitter) EmitDone(p protocol.DonePayload) error {
	return e.emit(protocol.EventDone, p)
}

// Close stops the keep-alive loop and marks the stream closed. It is
// idempotent and never fails.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeLocked()
}

func (e *Emitter) closeLocked() {
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}

// Done is closed when the emitter closes, whether by Close, a write
// failure, or replacement by a newer stream. Handlers select on it so
// the HTTP response ends as soon as the emitter is dead.
func (e *Emitter) Done() <-chan struct{} {
	return e.done
}

// IsClosed reports whether Close was called or a write failed.
func (e *Emitter) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
