package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestExtractBearerToken(t *testing.T) {
	r := httptest.NewRequest("POST", "/v1/hooks/pre-tool-use", nil)
	r.Header.Set("Authorization", "Bearer ag_test_key_12345")

	token, err := ExtractBearerToken(r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "ag_test_key_12345" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestExtractBearerToken_Missing(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	if _, err := ExtractBearerToken(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestExtractBearerToken_WrongScheme(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := ExtractBearerToken(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

// stubClientStore returns a fixed row or error.
type stubClientStore struct {
	row   *clientRow
	err   error
	calls int
}

func (s *stubClientStore) LookupByPrefix(context.Context, string) (*clientRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.row, nil
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestPostgresAuthenticator_ValidKey(t *testing.T) {
	key := "ag_live_0123456789"
	store := &stubClientStore{row: &clientRow{
		ClientID:   "client-1",
		APIKeyHash: hashKey(t, key),
		Role:       "executor",
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	client, err := a.Authenticate(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if client.ClientID != "client-1" || client.Role != "executor" {
		t.Fatalf("unexpected client %+v", client)
	}
}

func TestPostgresAuthenticator_WrongKey(t *testing.T) {
	store := &stubClientStore{row: &clientRow{
		ClientID:   "client-1",
		APIKeyHash: hashKey(t, "ag_live_correct_key"),
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), "ag_live_wrong_key00"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuthenticator_ShortToken(t *testing.T) {
	a := NewPostgresAuthenticatorWithStore(&stubClientStore{}, time.Minute, false, zap.NewNop())
	if _, err := a.Authenticate(context.Background(), "short"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuthenticator_CacheSkipsDB(t *testing.T) {
	key := "ag_live_0123456789"
	store := &stubClientStore{row: &clientRow{
		ClientID:   "client-1",
		APIKeyHash: hashKey(t, key),
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	for range 3 {
		if _, err := a.Authenticate(context.Background(), key); err != nil {
			t.Fatal(err)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 DB lookup with warm cache, got %d", store.calls)
	}
}

func TestPostgresAuthenticator_FailOpen(t *testing.T) {
	store := &stubClientStore{err: sql.ErrConnDone}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	client, err := a.Authenticate(context.Background(), "ag_live_0123456789")
	if err != nil {
		t.Fatalf("fail-open must not error, got %v", err)
	}
	if !client.FailOpen || client.ClientID != "unknown" {
		t.Fatalf("expected degraded client context, got %+v", client)
	}
}

func TestCache_TTLAndStaleRefresh(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("key", &ClientContext{ClientID: "c1"})

	fresh := c.Get("key")
	if !fresh.Hit || fresh.NeedsRefresh {
		t.Fatalf("expected fresh hit, got %+v", fresh)
	}

	time.Sleep(20 * time.Millisecond)

	stale := c.Get("key")
	if !stale.Hit || !stale.NeedsRefresh {
		t.Fatalf("expected stale hit needing refresh, got %+v", stale)
	}
	// Only one caller wins the refresh CAS.
	again := c.Get("key")
	if again.NeedsRefresh {
		t.Fatal("second stale read must not also schedule a refresh")
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator()
	client, err := a.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if client.ClientID != "local" {
		t.Fatalf("unexpected client %+v", client)
	}
}

func TestClientContextAllows(t *testing.T) {
	operator := &ClientContext{Role: RoleOperator}
	if !operator.Allows(RoleOperator) {
		t.Fatal("operator must pass operator routes")
	}
	if operator.Allows(RoleExecutor) {
		t.Fatal("operator must not pass executor routes")
	}

	admin := &ClientContext{Role: RoleAdmin}
	if !admin.Allows(RoleExecutor) || !admin.Allows(RoleOperator) {
		t.Fatal("admin must pass all routes")
	}

	degraded := &ClientContext{Role: RoleExecutor, FailOpen: true}
	if !degraded.Allows(RoleOperator) {
		t.Fatal("fail-open client must not be locked out by role")
	}
}
