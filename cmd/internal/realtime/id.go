package realtime

import (
	"time"

	"parley/cmd/identity/ids"
)

var sessionIDs = ids.NewMonotonic()

// NewSessionID returns a ULID used as websocket session id.
// IDs are monotonic and unique for the lifetime of the process.
func NewSessionID(now time.Time) (string, error) {
	return sessionIDs.Next(now)
}
