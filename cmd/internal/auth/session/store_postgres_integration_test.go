package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"parley/cmd/identity/ids"
	"parley/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when PARLEY_TEST_DATABASE_URL is set.

func TestPostgresStore_CreateGetRevoke(t *testing.T) {
	t.Parallel()

	pool, schema := mustSessionSchema(t)
	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	id, err := store.Create(ctx, now, "user-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	row, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.UserID != "user-1" || row.RevokedAt != nil || row.Active(now) != nil {
		t.Fatalf("row=%+v", row)
	}

	if err := store.Revoke(ctx, now, id, "logout"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(ctx, now.Add(time.Minute), id, "again"); err != nil {
		t.Fatalf("Revoke again: %v", err)
	}
	row, err = store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.RevokedAt == nil || !row.RevokedAt.Equal(now) {
		t.Fatalf("revoked_at=%v want %v", row.RevokedAt, now)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing: got %v", err)
	}
}

func TestPostgresStore_ResolverDelegatedToken(t *testing.T) {
	t.Parallel()

	pool, schema := mustSessionSchema(t)
	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	var hasher token.Hasher
	now := time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tokens := pgx.Identifier{schema, "client_user_tokens"}.Sanitize()
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+tokens+` (access_token_hash, user_id, scope, access_expires_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		hasher.HashTokenHex("u.integration"), "user-9", "friends.read", now.Add(time.Hour), now.Add(24*time.Hour),
	); err != nil {
		t.Fatalf("insert token: %v", err)
	}

	r, err := NewResolver(newTestManager(t), WithSessionStore(store), WithDelegatedStore(store, hasher))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	userID, grant, err := r.Resolve(ctx, "Bearer u.integration")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if userID != "user-9" || strings.Join(grant.Names(), ",") != "friends.read" {
		t.Fatalf("userID=%q grant=%s", userID, grant)
	}

	if _, _, err := r.Resolve(ctx, "Bearer u.unknown"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("unknown: got %v", err)
	}
}

func TestNewPostgresStore_Validation(t *testing.T) {
	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatalf("expected error for nil pool")
	}
	if _, err := NewPostgresStore(nil, WithSchema("bad-schema")); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func mustSessionSchema(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PARLEY_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PARLEY_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	id, err := ids.NewULID(time.Now())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "parley_it_" + strings.ToLower(id)
	quoted := pgx.Identifier{schema}.Sanitize()

	schemaSQL := fmt.Sprintf(`
CREATE SCHEMA %s;

CREATE TABLE %s (
  id                TEXT PRIMARY KEY,
  user_id           TEXT NOT NULL,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at        TIMESTAMPTZ NOT NULL,
  revoked_at        TIMESTAMPTZ,
  revocation_reason TEXT
);

CREATE TABLE %s (
  access_token_hash TEXT PRIMARY KEY,
  user_id           TEXT NOT NULL,
  scope             TEXT NOT NULL DEFAULT '',
  access_expires_at TIMESTAMPTZ NOT NULL,
  expires_at        TIMESTAMPTZ NOT NULL
);
`, quoted, pgx.Identifier{schema, "sessions"}.Sanitize(), pgx.Identifier{schema, "client_user_tokens"}.Sanitize())

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+quoted+` CASCADE`)
	})
	return pool, schema
}
