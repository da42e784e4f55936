package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"parley/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store and DelegatedStore using PostgreSQL
// (<schema>.sessions and <schema>.client_user_tokens).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore behavior.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "parley").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRE.MatchString(schema) {
			return ErrConfig
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, schema: "parley"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return s, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// Create inserts a new session row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, userID string, expiresAt time.Time) (string, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table("sessions")+` (id, user_id, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, NULL)
	`, id, userID, now, expiresAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id::text, created_at, expires_at, revoked_at
		FROM `+s.table("sessions")+`
		WHERE id = $1
	`, sessionID).Scan(
		&row.ID,
		&row.UserID,
		&row.CreatedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table("sessions")+`
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// LookupDelegated loads a delegated client token by hash. Expiry is checked by the caller.
func (s *PostgresStore) LookupDelegated(ctx context.Context, hash string) (DelegatedToken, error) {
	var tok DelegatedToken

	err := s.pool.QueryRow(ctx, `
		SELECT user_id::text, scope, access_expires_at, expires_at
		FROM `+s.table("client_user_tokens")+`
		WHERE access_token_hash = $1
	`, hash).Scan(
		&tok.UserID,
		&tok.Scope,
		&tok.AccessExpiresAt,
		&tok.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DelegatedToken{}, ErrTokenNotFound
	}
	if err != nil {
		return DelegatedToken{}, err
	}
	return tok, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
