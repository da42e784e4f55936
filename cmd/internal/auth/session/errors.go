package session

import "errors"

var (
	// ErrInvalidToken is returned when a credential fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when an access token references an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session or delegated token is expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrTokenNotFound is returned when no delegated token matches a hash.
	ErrTokenNotFound = errors.New("token not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
