// Package v1 defines the Parley Realtime Protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"strings"
)

// Subprotocol is the websocket subprotocol negotiated for v1.
const Subprotocol = "parley.realtime.v1"

// Control frame types (wire-stable).
const (
	// TypeAuthenticate carries a bearer token (client -> server).
	TypeAuthenticate = "authenticate"
	// TypeReauthenticate asks the client to prove its credential again (server -> client).
	TypeReauthenticate = "reauthenticate"
	// TypeAuthenticated acknowledges a successful (re)authentication (server -> client).
	TypeAuthenticated = "authenticated"
)

// Frame is the canonical wire wrapper: {"type": "...", "data": ...}.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Validate performs structural validation for an inbound Frame.
func (f Frame) Validate() error {
	if strings.TrimSpace(f.Type) == "" {
		return errors.New("missing field: type")
	}
	return nil
}

// AuthenticateToken decodes the token carried by an authenticate frame.
func (f Frame) AuthenticateToken() (string, error) {
	if f.Type != TypeAuthenticate {
		return "", errors.New("not an authenticate frame")
	}
	var tok string
	if err := json.Unmarshal(f.Data, &tok); err != nil {
		return "", errors.New("authenticate: data must be a string")
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", errors.New("authenticate: empty token")
	}
	return tok, nil
}

// AuthenticatedPayload is sent after a successful authenticate frame.
// Scopes is omitted for unrestricted sessions.
type AuthenticatedPayload struct {
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes,omitempty"`
}
