// Package server exposes the approval gate and the event stream over
// HTTP. The executor calls the hook endpoint and suspends; operators
// resume approvals and watch the session stream.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/agentdesk/actiongate/internal/approval"
	"github.com/agentdesk/actiongate/internal/auth"
	"github.com/agentdesk/actiongate/internal/protocol"
	"github.com/agentdesk/actiongate/internal/stream"
)

// maxRequestBodySize bounds hook and resume request bodies.
const maxRequestBodySize = 1 << 20 // 1MB

// Config wires the server's collaborators.
type Config struct {
	Gate          *approval.Gate
	Broker        *stream.Broker
	Authenticator auth.Authenticator
	KeepAlive     time.Duration
	Logger        *zap.Logger
}

// Server handles the HTTP API.
type Server struct {
	gate      *approval.Gate
	broker    *stream.Broker
	auth      auth.Authenticator
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	return &Server{
		gate:      cfg.Gate,
		broker:    cfg.Broker,
		auth:      cfg.Authenticator,
		keepAlive: cfg.KeepAlive,
		logger:    cfg.Logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.With(s.requireRole(auth.RoleExecutor)).Post("/hooks/pre-tool-use", s.handlePreToolUse)
		r.With(s.requireRole(auth.RoleOperator)).Post("/approvals/resume", s.handleResume)
		r.With(s.requireRole(auth.RoleOperator)).Get("/sessions/{sessionID}/stream", s.handleStream)
		r.With(s.requireRole(auth.RoleOperator)).Delete("/sessions/{sessionID}", s.handleTeardown)
	})

	return r
}

// authenticate resolves the bearer token and stores the caller's
// context on the request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or malformed bearer token")
			return
		}
		client, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClient(r.Context(), client)))
	})
}

// requireRole rejects callers whose authenticated role does not cover
// the route.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := auth.ClientFromContext(r.Context())
			if client == nil || !client.Allows(role) {
				writeError(w, http.StatusForbidden, "role not permitted for this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePreToolUse gates one proposed action. The request blocks while
// a medium or high risk action waits for its decision, so the
// executor's HTTP timeout must exceed the approval timeout.
func (s *Server) handlePreToolUse(w http.ResponseWriter, r *http.Request) {
	var action approval.Action
	if err := decodeBody(w, r, &action); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	decision, err := s.gate.PreToolUse(r.Context(), &action)
	switch {
	case errors.Is(err, approval.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("pre-tool-use failed",
			zap.String("session_id", action.SessionID),
			zap.String("tool_name", action.ToolName),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// resumeRequest carries an operator decision back to a suspended action.
type resumeRequest struct {
	CorrelationID string `json:"correlation_id"`
	RequestedAt   int64  `json:"timestamp"` // unix milliseconds, from the approval prompt
	Decision      string `json:"decision"`
	Feedback      string `json:"user_feedback,omitempty"`
}

type resumeResponse struct {
	Resolved bool `json:"resolved"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.CorrelationID == "" || req.RequestedAt == 0 {
		writeError(w, http.StatusBadRequest, "correlation_id and timestamp are required")
		return
	}

	err := s.gate.SubmitApproval(r.Context(), req.CorrelationID, req.RequestedAt, approval.Response{
		Decision: req.Decision,
		Feedback: req.Feedback,
	})
	switch {
	case errors.Is(err, approval.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, approval.ErrNotPending):
		// Duplicate resume or unknown key. The caller must treat this as
		// a failure, not as confirmation.
		writeJSON(w, http.StatusConflict, resumeResponse{Resolved: false})
		return
	case err != nil:
		s.logger.Error("resume failed",
			zap.String("correlation_id", req.CorrelationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, resumeResponse{Resolved: true})
}

// handleStream attaches the caller to the session's event stream.
// Disconnecting tears down only the stream; approvals suspended for
// this session keep waiting for their own resolution.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emitter := stream.NewEmitter(w, s.keepAlive, s.logger)
	s.broker.Attach(sessionID, emitter)
	defer s.broker.Detach(sessionID, emitter)

	if err := emitter.EmitStatus(protocol.StatusPayload{
		Status:    "connected",
		SessionID: sessionID,
	}); err != nil {
		return
	}

	s.logger.Info("stream attached", zap.String("session_id", sessionID))
	select {
	case <-r.Context().Done():
		emitter.Close()
	case <-emitter.Done():
		// Replaced by a newer stream, write failure, or teardown. End
		// the response so the client can reconnect cleanly.
	}
	s.logger.Info("stream detached", zap.String("session_id", sessionID))
}

// handleTeardown force-rejects the session's outstanding approvals and
// closes its stream. Idempotent: a second call finds nothing pending.
func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := s.gate.TeardownSession(r.Context(), sessionID); err != nil {
		s.logger.Error("session teardown failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.broker.CloseSession(sessionID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
