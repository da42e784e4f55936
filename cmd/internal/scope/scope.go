package scope

import (
	"errors"
	"fmt"
	"strings"
)

// Category is a permission category.
type Category uint8

const (
	// Identify grants the caller's basic identity. It has no read/write split.
	Identify Category = iota + 1
	// Profile covers the user's own profile.
	Profile
	// Servers covers servers, channels, invites and members.
	Servers
	// Messages covers channel and direct messages.
	Messages
	// Friends covers friends and friend requests.
	Friends
)

// Access is the access level of a scope.
type Access uint8

const (
	// AccessNone is reported for categories without a read/write split.
	AccessNone Access = iota
	AccessRead
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "none"
	}
}

var categoryNames = map[Category]string{
	Identify: "identify",
	Profile:  "profile",
	Servers:  "servers",
	Messages: "messages",
	Friends:  "friends",
}

// Categories lists every known category in declaration order.
func Categories() []Category {
	return []Category{Identify, Profile, Servers, Messages, Friends}
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Split reports whether the category distinguishes read from write access.
func (c Category) Split() bool {
	switch c {
	case Profile, Servers, Messages, Friends:
		return true
	default:
		return false
	}
}

// Scope is an immutable (category, access) value. It is comparable and can be used as a map key.
type Scope struct {
	Category Category
	Access   Access
}

// Read returns the read scope of a split category.
func Read(c Category) Scope { return Scope{Category: c, Access: AccessRead} }

// Write returns the write scope of a split category.
func Write(c Category) Scope { return Scope{Category: c, Access: AccessWrite} }

// Unsplit returns the scope of a category without a read/write split.
func Unsplit(c Category) Scope { return Scope{Category: c, Access: AccessNone} }

// Valid reports whether the scope names a known category with a legal access level for it.
func (s Scope) Valid() bool {
	if _, ok := categoryNames[s.Category]; !ok {
		return false
	}
	if s.Category.Split() {
		return s.Access == AccessRead || s.Access == AccessWrite
	}
	return s.Access == AccessNone
}

// String returns the wire name ("servers.read", "identify").
func (s Scope) String() string {
	if !s.Category.Split() {
		return s.Category.String()
	}
	return s.Category.String() + "." + s.Access.String()
}

// AccessLevel returns the access level of s. The boolean is false for categories
// that have no read/write split.
func AccessLevel(s Scope) (Access, bool) {
	if !s.Category.Split() {
		return AccessNone, false
	}
	return s.Access, true
}

var (
	// ErrUnknownScope is returned when a scope name is not recognized.
	ErrUnknownScope = errors.New("unknown scope")
)

// ParseError reports the offending scope name.
type ParseError struct {
	Name string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownScope.Error(), e.Name)
}

func (e *ParseError) Unwrap() error { return ErrUnknownScope }

// Parse parses a single wire scope name.
func Parse(name string) (Scope, error) {
	n := strings.ToLower(strings.TrimSpace(name))

	cat, acc, hasAccess := strings.Cut(n, ".")
	for c, cn := range categoryNames {
		if cn != cat {
			continue
		}
		if !c.Split() {
			if hasAccess {
				break
			}
			return Unsplit(c), nil
		}
		switch acc {
		case "read":
			return Read(c), nil
		case "write":
			return Write(c), nil
		}
		break
	}
	return Scope{}, &ParseError{Name: name}
}

// ParseList parses a comma separated list of scope names. Empty items are skipped.
func ParseList(csv string) ([]Scope, error) {
	parts := strings.Split(csv, ",")
	out := make([]Scope, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		s, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
