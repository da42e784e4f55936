package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley/cmd/internal/scope"
	"parley/cmd/security/token"
)

const (
	bearerPrefix = "Bearer "
	// Delegated tokens acting for a user. Client-only tokens have no user and
	// cannot open a realtime session.
	userTokenPrefix = "u."
)

// Resolver turns a credential into (user id, grant). It satisfies
// realtime.IdentityResolver.
type Resolver struct {
	tokens    AccessTokenManager
	sessions  Store
	delegated DelegatedStore
	hasher    token.Hasher
	now       func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSessionStore enables revocation and expiry checks for first-party tokens.
func WithSessionStore(s Store) ResolverOption {
	return func(r *Resolver) { r.sessions = s }
}

// WithDelegatedStore enables "Bearer u.<token>" credentials.
func WithDelegatedStore(s DelegatedStore, h token.Hasher) ResolverOption {
	return func(r *Resolver) {
		r.delegated = s
		r.hasher = h
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver builds a Resolver around a first-party token manager.
func NewResolver(tokens AccessTokenManager, opts ...ResolverOption) (*Resolver, error) {
	if tokens == nil {
		return nil, ErrConfig
	}
	r := &Resolver{tokens: tokens, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Resolve verifies cred. Errors wrap one of the package sentinels and must not
// be shown to clients.
func (r *Resolver) Resolve(ctx context.Context, cred string) (string, scope.Grant, error) {
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return "", scope.Grant{}, ErrInvalidToken
	}
	if raw, ok := strings.CutPrefix(cred, bearerPrefix); ok {
		return r.resolveDelegated(ctx, strings.TrimSpace(raw))
	}
	return r.resolveFirstParty(ctx, cred)
}

func (r *Resolver) resolveFirstParty(ctx context.Context, tok string) (string, scope.Grant, error) {
	now := r.now().UTC()

	claims, err := r.tokens.Verify(tok, now)
	if err != nil {
		return "", scope.Grant{}, err
	}

	if r.sessions != nil {
		row, err := r.sessions.GetByID(ctx, claims.SessionID)
		if err != nil {
			return "", scope.Grant{}, fmt.Errorf("session: lookup %s: %w", claims.SessionID, err)
		}
		if row.UserID != claims.UserID {
			return "", scope.Grant{}, ErrInvalidToken
		}
		if err := row.Active(now); err != nil {
			return "", scope.Grant{}, err
		}
	}

	return claims.UserID, scope.Unrestricted(), nil
}

func (r *Resolver) resolveDelegated(ctx context.Context, tok string) (string, scope.Grant, error) {
	if r.delegated == nil || !strings.HasPrefix(tok, userTokenPrefix) || len(tok) == len(userTokenPrefix) {
		return "", scope.Grant{}, ErrInvalidToken
	}

	rec, err := r.delegated.LookupDelegated(ctx, r.hasher.HashTokenHex(tok))
	if err != nil {
		return "", scope.Grant{}, fmt.Errorf("session: delegated lookup: %w", err)
	}

	now := r.now().UTC()
	if !now.Before(rec.AccessExpiresAt) || !now.Before(rec.ExpiresAt) {
		return "", scope.Grant{}, ErrSessionExpired
	}

	scopes, err := scope.ParseList(rec.Scope)
	if err != nil {
		return "", scope.Grant{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return rec.UserID, scope.Restrict(scopes...), nil
}
