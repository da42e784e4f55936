package scope

import (
	"slices"
	"strings"
)

// Grant is the set of scopes held by a session.
//
// The zero value is an empty restricted grant that satisfies nothing.
// Use Unrestricted for first-party principals.
type Grant struct {
	unrestricted bool
	set          map[Scope]struct{}
}

// Unrestricted returns a grant that satisfies every scope.
func Unrestricted() Grant {
	return Grant{unrestricted: true}
}

// Restrict returns a grant limited to the given scopes. Invalid scopes are ignored.
func Restrict(scopes ...Scope) Grant {
	set := make(map[Scope]struct{}, len(scopes))
	for _, s := range scopes {
		if s.Valid() {
			set[s] = struct{}{}
		}
	}
	return Grant{set: set}
}

// IsUnrestricted reports whether g carries no scope restriction.
func (g Grant) IsUnrestricted() bool { return g.unrestricted }

// Has reports whether s is literally present in a restricted grant.
// It is always true for an unrestricted grant.
func (g Grant) Has(s Scope) bool {
	if g.unrestricted {
		return true
	}
	_, ok := g.set[s]
	return ok
}

// Scopes returns the restricted scopes in a stable order, or nil when unrestricted.
func (g Grant) Scopes() []Scope {
	if g.unrestricted {
		return nil
	}
	out := make([]Scope, 0, len(g.set))
	for s := range g.set {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Scope) int {
		if a.Category != b.Category {
			return int(a.Category) - int(b.Category)
		}
		return int(a.Access) - int(b.Access)
	})
	return out
}

// Names returns the wire names of the restricted scopes, or nil when unrestricted.
func (g Grant) Names() []string {
	if g.unrestricted {
		return nil
	}
	scopes := g.Scopes()
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = s.String()
	}
	return out
}

func (g Grant) String() string {
	if g.unrestricted {
		return "*"
	}
	return strings.Join(g.Names(), ",")
}

// Exceeds reports whether g holds a scope that prev does not. An unrestricted
// prev is never exceeded, and a restricted prev is always exceeded by an
// unrestricted g.
func (g Grant) Exceeds(prev Grant) bool {
	if prev.unrestricted {
		return false
	}
	if g.unrestricted {
		return true
	}
	for s := range g.set {
		if _, ok := prev.set[s]; !ok {
			return true
		}
	}
	return false
}

// Satisfies reports whether a session holding g may observe something that requires required.
func Satisfies(g Grant, required Scope) bool {
	if g.unrestricted {
		return true
	}
	if _, ok := g.set[required]; ok {
		return true
	}
	if lvl, split := AccessLevel(required); split && lvl == AccessRead {
		_, ok := g.set[Write(required.Category)]
		return ok
	}
	return false
}
