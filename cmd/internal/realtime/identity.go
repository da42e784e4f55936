package realtime

import (
	"context"

	"parley/cmd/internal/scope"
)

// IdentityResolver turns a bearer token from an authenticate frame into a principal.
//
// Implementations must be safe for concurrent use. Any error is treated as an
// unauthorized credential; the reason is logged but never sent to the client.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (userID string, grant scope.Grant, err error)
}

// ResolverFunc adapts a function to IdentityResolver.
type ResolverFunc func(ctx context.Context, token string) (string, scope.Grant, error)

func (f ResolverFunc) Resolve(ctx context.Context, token string) (string, scope.Grant, error) {
	return f(ctx, token)
}
