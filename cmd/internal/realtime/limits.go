package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Tokens longer than this are rejected before reaching the resolver.
	maxTokenBytes = 4 << 10
)

// Protocol timings.
const (
	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 10 * time.Second

	authTimeout    = 10 * time.Second
	reauthInterval = 10 * time.Minute
	reauthGrace    = 10 * time.Second

	resolveTimeout = 5 * time.Second
	pruneTimeout   = 5 * time.Second

	// Per-connection inbound rate limits (frames per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
