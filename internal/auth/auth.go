// Package auth authenticates inbound API callers by bearer token.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned for missing or invalid credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Roles granted to API clients. Executors call the pre-tool-use hook;
// operators resume approvals and watch session streams; admin covers
// both.
const (
	RoleExecutor = "executor"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Authenticator validates an API key and returns the caller's context.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*ClientContext, error)
}

// ClientContext identifies an authenticated caller.
type ClientContext struct {
	ClientID string
	Role     string // RoleExecutor, RoleOperator, or RoleAdmin
	FailOpen bool
}

// Allows reports whether the client may use routes requiring role.
// Admin passes everywhere; a fail-open degraded client is never locked
// out by a role it could not be looked up for.
func (c *ClientContext) Allows(role string) bool {
	return c.Role == role || c.Role == RoleAdmin || c.FailOpen
}

type clientContextKey struct{}

// WithClient stores the authenticated caller on the context.
func WithClient(ctx context.Context, client *ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// ClientFromContext returns the authenticated caller, or nil.
func ClientFromContext(ctx context.Context) *ClientContext {
	client, _ := ctx.Value(clientContextKey{}).(*ClientContext)
	return client
}

// ExtractBearerToken pulls the token from an Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrUnauthenticated
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}
