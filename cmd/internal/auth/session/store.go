package session

import (
	"context"
	"time"
)

// Row mirrors the <schema>.sessions columns the resolver needs.
type Row struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports whether the session can still authenticate at now.
func (r Row) Active(now time.Time) error {
	if r.RevokedAt != nil {
		return ErrSessionRevoked
	}
	if !now.Before(r.ExpiresAt) {
		return ErrSessionExpired
	}
	return nil
}

// DelegatedToken mirrors a <schema>.client_user_tokens row.
type DelegatedToken struct {
	UserID string
	// Scope is the comma separated scope list granted to the client.
	Scope           string
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
}

// Store abstracts persistence for first-party sessions.
type Store interface {
	// Create inserts a session row and returns its ULID.
	Create(ctx context.Context, now time.Time, userID string, expiresAt time.Time) (sessionID string, err error)

	// GetByID loads a session row by ID. Missing rows return ErrSessionNotFound.
	GetByID(ctx context.Context, sessionID string) (Row, error)

	// Revoke revokes a single session (idempotent).
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error
}

// DelegatedStore looks up delegated client tokens by hash.
type DelegatedStore interface {
	// LookupDelegated returns the token stored under hash, or ErrTokenNotFound.
	LookupDelegated(ctx context.Context, hash string) (DelegatedToken, error)
}
