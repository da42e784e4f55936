package app

import (
	"errors"
	"fmt"

	"parley/cmd/security/token"
)

// ValidateSecurityConfig enforces the token hashing policy at startup and
// returns the hasher used for delegated token lookups.
//
// Fail-fast: a required HMAC key that is missing or short stops the server
// instead of silently hashing with plain SHA-256.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	h, err := token.NewHasher(cfg.Auth.TokenHMACKey, cfg.Auth.RequireTokenHMAC)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: auth.require_token_hmac=true but auth.token_hmac_key is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: auth.token_hmac_key is too short (min %d bytes)", token.MinHMACKeyBytes)
	default:
		return token.Hasher{}, err
	}

	if cfg.Auth.RequireTokenHMAC && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: auth.require_token_hmac=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
