// Package session resolves bearer credentials into a Parley principal.
//
// Two credential families are accepted on the realtime socket:
//
//   - First-party access tokens: PASETO v4.public tokens carrying uid/sid
//     claims. They grant unrestricted access. When a session store is
//     configured the referenced session must exist, belong to the same user,
//     and be neither revoked nor expired.
//   - Delegated tokens: "Bearer u.<opaque>" strings issued to third-party
//     clients. They are looked up by hash (see cmd/security/token) and carry
//     a restricted scope list.
//
// Issuing delegated tokens (the OAuth flow) is out of scope here.
package session
