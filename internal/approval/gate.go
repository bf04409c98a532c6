package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/agentdesk/actiongate/internal/audit"
	"github.com/agentdesk/actiongate/internal/pending"
	"github.com/agentdesk/actiongate/internal/protocol"
	"github.com/agentdesk/actiongate/internal/risk"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout is how long a suspended action waits for a human
// decision before resolving as rejected.
const DefaultTimeout = 300 * time.Second

// EventSink delivers approval prompts to the session's event stream.
// Implementations must not block.
type EventSink interface {
	EmitApprovalRequest(sessionID string, p protocol.ApprovalRequestPayload)
}

// Validator rejects malformed actions before they reach the classifier.
type Validator interface {
	ValidateAction(a *Action) error
}

// GateConfig wires the gate's collaborators.
type GateConfig struct {
	Classifier *risk.Classifier
	Store      pending.Store
	Sink       EventSink
	Audit      audit.DecisionWriter
	Validator  Validator // optional
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Gate intercepts proposed actions before execution.
type Gate struct {
	classifier *risk.Classifier
	store      pending.Store
	waiters    *Registry
	sink       EventSink
	audit      audit.DecisionWriter
	validator  Validator
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewGate creates a gate. A zero timeout selects DefaultTimeout.
func NewGate(cfg GateConfig) *Gate {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		classifier: cfg.Classifier,
		store:      cfg.Store,
		waiters:    NewRegistry(),
		sink:       cfg.Sink,
		audit:      cfg.Audit,
		validator:  cfg.Validator,
		timeout:    timeout,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// PreToolUse classifies the action and either allows it immediately or
// suspends until a decision, the timeout, or session teardown resolves
// it. Allow=false means the executor must not run the action.
func (g *Gate) PreToolUse(ctx context.Context, action *Action) (Decision, error) {
	if err := g.validate(action); err != nil {
		return Decision{}, err
	}

	assessment := g.classifier.Classify(risk.Input{
		Operation:     action.Operation,
		DocType:       action.DocType,
		Fields:        action.Fields,
		DocumentState: action.DocumentState,
		Count:         action.Count,
	})

	if !assessment.RequiresApproval {
		g.writeDecision(action, assessment, decisionOutcome{
			allowed:      true,
			reason:       "low risk",
			autoApproved: true,
			source:       "auto",
			requestedAt:  g.now(),
			resolvedAt:   g.now(),
		})
		return Decision{Allow: true, Reason: "auto-approved: " + assessment.Reasoning}, nil
	}

	return g.awaitApproval(ctx, action, assessment)
}

func (g *Gate) validate(action *Action) error {
	if action == nil {
		return fmt.Errorf("%w: missing action", ErrInvalidAction)
	}
	if action.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", ErrInvalidAction)
	}
	if action.ToolName == "" {
		return fmt.Errorf("%w: missing tool_name", ErrInvalidAction)
	}
	if action.Operation == "" {
		return fmt.Errorf("%w: missing operation", ErrInvalidAction)
	}
	if g.validator != nil {
		if err := g.validator.ValidateAction(action); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
	}
	return nil
}

// awaitApproval persists the pending request, emits the approval
// prompt, then suspends. The durable store's conditional resolve is the
// single arbiter between the resume call, the timeout, and teardown, so
// whichever loses the race is provably a no-op.
func (g *Gate) awaitApproval(ctx context.Context, action *Action, assessment risk.Assessment) (Decision, error) {
	correlationID := uuid.New().String()
	requestedAt := g.now()
	requestedAtMs := requestedAt.UnixMilli()

	ch := g.waiters.Register(correlationID, requestedAtMs)

	rec := &pending.Record{
		CorrelationID:    correlationID,
		RequestedAt:      requestedAtMs,
		SessionID:        action.SessionID,
		ToolName:         action.ToolName,
		ToolInput:        action.ToolInput,
		Operation:        action.Operation,
		DocType:          action.DocType,
		RiskLevel:        string(assessment.Level),
		RiskScore:        assessment.Score,
		OperationPreview: action.preview(),
		Reasoning:        assessment.Reasoning,
		ExpiresAt:        requestedAt.Add(g.timeout),
	}
	if err := g.store.Insert(ctx, rec); err != nil {
		g.waiters.Take(correlationID, requestedAtMs)
		return Decision{}, fmt.Errorf("persist pending approval: %w", err)
	}

	g.logger.Info("action suspended pending approval",
		zap.String("correlation_id", correlationID),
		zap.String("session_id", action.SessionID),
		zap.String("tool_name", action.ToolName),
		zap.String("risk_level", string(assessment.Level)),
		zap.Float64("risk_score", assessment.Score),
	)

	g.sink.EmitApprovalRequest(action.SessionID, protocol.ApprovalRequestPayload{
		CorrelationID:    correlationID,
		RequestedAt:      requestedAtMs,
		ToolName:         action.ToolName,
		ToolInput:        action.ToolInput,
		RiskLevel:        string(assessment.Level),
		OperationPreview: rec.OperationPreview,
		Reasoning:        assessment.Reasoning,
	})

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	var res pending.Resolution
	select {
	case res = <-ch:
		// Resolved externally (resume call or teardown).

	case <-timer.C:
		res = g.forceResolve(ch, correlationID, requestedAtMs, "timeout")

	case <-ctx.Done():
		res = g.forceResolve(ch, correlationID, requestedAtMs, "canceled")
	}

	decision := decisionFrom(res)
	g.writeDecision(action, assessment, decisionOutcome{
		allowed:       decision.Allow,
		reason:        decision.Reason,
		source:        res.Reason,
		feedback:      res.Feedback,
		correlationID: correlationID,
		requestedAt:   requestedAt,
		resolvedAt:    res.ResolvedAt,
	})
	return decision, nil
}

// forceResolve settles a suspended wait from inside the gate (timeout
// or caller cancellation). When the store write errors the action is
// rejected locally rather than waiting on a wake that may never come;
// the in-process waiter is taken either way so no channel leaks.
func (g *Gate) forceResolve(ch <-chan pending.Resolution, correlationID string, requestedAt int64, reason string) pending.Resolution {
	rejected := pending.Resolution{
		Decision:   pending.StatusRejected,
		Reason:     reason,
		ResolvedAt: g.now(),
	}

	won, err := g.resolveInternal(correlationID, requestedAt, rejected)
	if err != nil {
		g.logger.Error("forced resolution failed, rejecting locally",
			zap.String("correlation_id", correlationID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		g.waiters.Take(correlationID, requestedAt)
		return rejected
	}
	if won {
		g.waiters.Take(correlationID, requestedAt)
		return rejected
	}
	// A resume call or teardown won the store race first; its wake is
	// in flight on the buffered channel.
	return <-ch
}

// resolveInternal performs the conditional store write off the request
// context so cleanup happens even when the caller is already gone.
func (g *Gate) resolveInternal(correlationID string, requestedAt int64, res pending.Resolution) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.store.Resolve(ctx, correlationID, requestedAt, res)
}

// SubmitApproval resolves a suspended action with a human decision.
// Idempotent at the protocol level: the first call for a key wins,
// every later call returns ErrNotPending and has no further effect.
func (g *Gate) SubmitApproval(ctx context.Context, correlationID string, requestedAt int64, resp Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}

	resolvedAt := resp.Timestamp
	if resolvedAt.IsZero() {
		resolvedAt = g.now()
	}
	res := pending.Resolution{
		Decision:   resp.Decision,
		Feedback:   resp.Feedback,
		Reason:     "user",
		ResolvedAt: resolvedAt,
	}

	won, err := g.store.Resolve(ctx, correlationID, requestedAt, res)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if !won {
		g.logger.Warn("resume for unknown or already resolved approval",
			zap.String("correlation_id", correlationID),
			zap.Int64("requested_at", requestedAt),
		)
		return ErrNotPending
	}

	if ch, ok := g.waiters.Take(correlationID, requestedAt); ok {
		ch <- res
	} else {
		// Record resolved but no waiter in this process. Happens after a
		// restart with a durable store; the decision is persisted and a
		// fresh PreToolUse for the same action will re-classify.
		g.logger.Info("resolved approval with no in-process waiter",
			zap.String("correlation_id", correlationID),
		)
		if rec, err := g.store.Get(ctx, correlationID, requestedAt); err == nil && rec != nil {
			g.writeRecordDecision(rec, res)
		}
	}

	g.logger.Info("approval resolved by user",
		zap.String("correlation_id", correlationID),
		zap.String("decision", resp.Decision),
	)
	return nil
}

// TeardownSession force-rejects every outstanding approval for the
// session so none is left dangling.
func (g *Gate) TeardownSession(ctx context.Context, sessionID string) error {
	recs, err := g.store.ListPending(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list pending approvals: %w", err)
	}

	for _, rec := range recs {
		res := pending.Resolution{
			Decision:   pending.StatusRejected,
			Reason:     "session_teardown",
			ResolvedAt: g.now(),
		}
		won, err := g.store.Resolve(ctx, rec.CorrelationID, rec.RequestedAt, res)
		if err != nil {
			g.logger.Error("teardown resolution failed",
				zap.String("correlation_id", rec.CorrelationID),
				zap.Error(err),
			)
			continue
		}
		if !won {
			continue
		}
		if ch, ok := g.waiters.Take(rec.CorrelationID, rec.RequestedAt); ok {
			ch <- res
		} else {
			// No waiter to audit this one; record the forced rejection here.
			g.writeRecordDecision(rec, res)
		}
	}

	if len(recs) > 0 {
		g.logger.Info("session teardown rejected outstanding approvals",
			zap.String("session_id", sessionID),
			zap.Int("count", len(recs)),
		)
	}
	return nil
}

func decisionFrom(res pending.Resolution) Decision {
	if res.Approved() {
		reason := "approved by user"
		if res.Feedback != "" {
			reason += ": " + res.Feedback
		}
		return Decision{Allow: true, Reason: reason}
	}

	switch res.Reason {
	case "timeout":
		return Decision{Allow: false, Reason: "timeout"}
	case "session_teardown":
		return Decision{Allow: false, Reason: "session teardown"}
	case "canceled":
		return Decision{Allow: false, Reason: "canceled"}
	default:
		reason := "rejected by user"
		if res.Feedback != "" {
			reason += ": " + res.Feedback
		}
		return Decision{Allow: false, Reason: reason}
	}
}

type decisionOutcome struct {
	allowed       bool
	reason        string
	autoApproved  bool
	source        string
	feedback      string
	correlationID string
	requestedAt   time.Time
	resolvedAt    time.Time
}

// writeDecision appends to the audit sink. The sink never blocks and
// its failures never reach the returned decision.
func (g *Gate) writeDecision(action *Action, assessment risk.Assessment, out decisionOutcome) {
	if g.audit == nil {
		return
	}

	decision := "denied"
	if out.allowed {
		decision = "allowed"
	}
	g.audit.Write(&audit.DecisionEvent{
		RequestID:     uuid.New().String(),
		CorrelationID: out.correlationID,
		SessionID:     action.SessionID,
		UserID:        action.UserID,
		Timestamp:     g.now(),
		ToolName:      action.ToolName,
		ToolInputJSON: string(action.ToolInput),
		Operation:     action.Operation,
		DocType:       action.DocType,
		RiskLevel:     string(assessment.Level),
		RiskScore:     assessment.Score,
		Decision:      decision,
		Reason:        out.reason,
		AutoApproved:  out.autoApproved,
		Feedback:      out.feedback,
		RequestedAt:   out.requestedAt,
		ResolvedAt:    out.resolvedAt,
		WaitMs:        float32(out.resolvedAt.Sub(out.requestedAt).Milliseconds()),
		Source:        out.source,
	})
}

// writeRecordDecision audits a resolution when the suspended waiter is
// not in this process.
func (g *Gate) writeRecordDecision(rec *pending.Record, res pending.Resolution) {
	if g.audit == nil {
		return
	}
	decision := "denied"
	if res.Approved() {
		decision = "allowed"
	}
	g.audit.Write(&audit.DecisionEvent{
		RequestID:     uuid.New().String(),
		CorrelationID: rec.CorrelationID,
		SessionID:     rec.SessionID,
		Timestamp:     g.now(),
		ToolName:      rec.ToolName,
		ToolInputJSON: string(rec.ToolInput),
		Operation:     rec.Operation,
		DocType:       rec.DocType,
		RiskLevel:     rec.RiskLevel,
		RiskScore:     rec.RiskScore,
		Decision:      decision,
		Reason:        res.Reason,
		Feedback:      res.Feedback,
		RequestedAt:   time.UnixMilli(rec.RequestedAt),
		ResolvedAt:    res.ResolvedAt,
		WaitMs:        float32(res.ResolvedAt.Sub(time.UnixMilli(rec.RequestedAt)).Milliseconds()),
		Source:        res.Reason,
	})
}
