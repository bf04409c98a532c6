package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ClientStore abstracts DB queries for testability.
type ClientStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*clientRow, error)
}

type clientRow struct {
	ClientID   string
	APIKeyHash string
	Role       string
	FailOpen   bool
}

// sqlClientStore is the real implementation using *sql.DB.
type sqlClientStore struct {
	db *sql.DB
}

func (s *sqlClientStore) LookupByPrefix(ctx context.Context, prefix string) (*clientRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key_hash, role, fail_open
		FROM api_clients
		WHERE api_key_prefix = $1
	`, prefix)

	var r clientRow
	if err := row.Scan(&r.ClientID, &r.APIKeyHash, &r.Role, &r.FailOpen); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against the api_clients table.
type PostgresAuthenticator struct {
	store    ClientStore
	cache    *Cache
	logger   *zap.Logger
	failOpen bool
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	FailOpen bool
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    &sqlClientStore{db: cfg.DB},
		cache:    NewCache(ttl),
		logger:   cfg.Logger,
		failOpen: cfg.FailOpen,
	}
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store ClientStore, cacheTTL time.Duration, failOpen bool, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    store,
		cache:    NewCache(cacheTTL),
		logger:   logger,
		failOpen: failOpen,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, token string) (*ClientContext, error) {
	// Check cache
	cacheResult := a.cache.Get(token)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return cacheResult.Client, nil
	}

	// Cache miss — authenticate synchronously
	client, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if a.failOpen {
			a.logger.Warn("auth failed, degrading to fail-open",
				zap.Error(err),
			)
			return &ClientContext{
				ClientID: "unknown",
				Role:     RoleExecutor,
				FailOpen: true,
			}, nil
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(token, client)
	return client, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*ClientContext, error) {
	if len(token) < 8 {
		return nil, ErrUnauthenticated
	}
	prefix := token[:8]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}

	return &ClientContext{
		ClientID: row.ClientID,
		Role:     row.Role,
		FailOpen: row.FailOpen,
	}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(token, client)
}
