package session

import (
	"strings"
	"time"
)

// Config defines runtime configuration for credential verification.
//
// Values are loaded by the app layer (viper) and validated here.
type Config struct {
	// Issuer is the value set in, and required of, the "iss" claim.
	Issuer string

	// AccessTokenTTL is the lifetime of tokens minted by Issue.
	AccessTokenTTL time.Duration

	// ClockSkew is the tolerated clock difference during validation.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign and verify PASETO v4.public access tokens.
	PasetoV4SecretKeyHex string
}

// DefaultConfig returns defaults suitable for development. The key is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:         "parley",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      30 * time.Second,
	}
}

// Validate returns ErrConfig if a required value is missing or out of range.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	if strings.TrimSpace(c.PasetoV4SecretKeyHex) == "" {
		return ErrConfig
	}
	return nil
}
