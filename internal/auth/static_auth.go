package auth

import "context"

// StaticAuthenticator accepts every caller with full access. Used when
// no Postgres DSN is configured (local development, trusted networks).
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, _ string) (*ClientContext, error) {
	return &ClientContext{
		ClientID: "local",
		Role:     RoleAdmin,
	}, nil
}
