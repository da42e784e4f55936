// Package ids provides ID primitives (ULID) shared by the server packages.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable and work well in distributed systems.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Monotonic issues ULIDs that strictly increase for the lifetime of the generator,
// even when several are minted within the same millisecond. Safe for concurrent use.
type Monotonic struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    ulid.ULID
}

// NewMonotonic constructs a generator seeded from crypto/rand.
func NewMonotonic() *Monotonic {
	return &Monotonic{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns the next ULID string. A clock that moves backwards is clamped
// to the last issued timestamp so ordering is preserved.
func (g *Monotonic) Next(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(now)
	if ms < g.last.Time() {
		ms = g.last.Time()
	}

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", err
	}
	g.last = id
	return id.String(), nil
}
