// Package token provides hashing primitives for opaque bearer tokens.
//
// Delegated client tokens are never stored in plaintext. The lookup key is
// the hex digest of the token:
// - HMAC-SHA256(token, key) when a key is configured (production).
// - SHA-256(token) otherwise (dev).
//
// Output is always 64 hex characters.
package token
