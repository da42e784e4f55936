// Package scope defines the permission categories granted to a session and
// the read/write ordering used to decide whether a session may observe an event.
//
// A Grant is either unrestricted (first-party login) or restricted to an explicit
// set of scopes (delegated token). Write access to a category implies read access
// to the same category; read never implies write.
package scope
