package stream

import (
	"sync"

	"github.com/agentdesk/actiongate/internal/protocol"
	"go.uber.org/zap"
)

// Broker routes gate emissions to whichever emitter is attached for a
// session. At most one stream per session: attaching a new one closes
// the previous. Emitting for a session with no attached stream is a
// no-op; an outstanding approval still resolves even when nobody is
// watching.
type Broker struct {
	mu      sync.Mutex
	streams map[string]*Emitter
	logger  *zap.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		streams: make(map[string]*Emitter),
		logger:  logger,
	}
}

// Attach registers the emitter for sessionID, closing any previous one.
func (b *Broker) Attach(sessionID string, e *Emitter) {
	b.mu.Lock()
	prev := b.streams[sessionID]
	b.streams[sessionID] = e
	b.mu.Unlock()

	if prev != nil {
		prev.Close()
		b.logger.Info("replaced existing stream for session",
			zap.String("session_id", sessionID),
		)
	}
}

// Detach removes the emitter for sessionID, but only if it is still the
// one attached; a stale handler unwinding after replacement must not
// detach its successor.
func (b *Broker) Detach(sessionID string, e *Emitter) {
	b.mu.Lock()
	if b.streams[sessionID] == e {
		delete(b.streams, sessionID)
	}
	b.mu.Unlock()
	e.Close()
}

// get returns the attached emitter or nil.
func (b *Broker) get(sessionID string) *Emitter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[sessionID]
}

// EmitApprovalRequest forwards an approval prompt to the session's stream.
func (b *Broker) EmitApprovalRequest(sessionID string, p protocol.ApprovalRequestPayload) {
	e := b.get(sessionID)
	if e == nil {
		b.logger.Debug("no stream attached, dropping approval_request frame",
			zap.String("session_id", sessionID),
			zap.String("correlation_id", p.CorrelationID),
		)
		return
	}
	if err := e.EmitApprovalRequest(p); err != nil {
		b.logger.Warn("emit approval_request failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// EmitStatus forwards a phase change to the session's stream.
func (b *Broker) EmitStatus(sessionID string, p protocol.StatusPayload) {
	if e := b.get(sessionID); e != nil {
		_ = e.EmitStatus(p)
	}
}

// CloseSession detaches and closes the session's stream if one exists.
func (b *Broker) CloseSession(sessionID string) {
	b.mu.Lock()
	e := b.streams[sessionID]
	delete(b.streams, sessionID)
	b.mu.Unlock()

	if e != nil {
		e.Close()
	}
}
