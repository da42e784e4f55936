package realtime

import (
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Config tunes the websocket gateway and the per-connection protocol timings.
type Config struct {
	// DevInsecure disables websocket.Accept origin verification. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	SendQueue     int
	WriteTimeout  time.Duration
	MaxFrameBytes int64

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	AuthTimeout    time.Duration
	ReauthInterval time.Duration
	ReauthGrace    time.Duration

	// ResolveTimeout bounds a single identity resolver call.
	ResolveTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		OriginRequired:    wsDefaultOriginRequired,
		AllowedOrigins:    SplitCSV(wsDefaultAllowedOrigins),
		SendQueue:         wsDefaultSendQueueSize,
		WriteTimeout:      wsDefaultWriteTimeout,
		MaxFrameBytes:     maxFrameBytes,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		AuthTimeout:       authTimeout,
		ReauthInterval:    reauthInterval,
		ReauthGrace:       reauthGrace,
		ResolveTimeout:    resolveTimeout,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
	}
}

// Normalize replaces invalid values with defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()

	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.SendQueue < wsMinSendQueueSize {
		c.SendQueue = wsMinSendQueueSize
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	durations := []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&c.WriteTimeout, d.WriteTimeout},
		{&c.HeartbeatInterval, d.HeartbeatInterval},
		{&c.HeartbeatTimeout, d.HeartbeatTimeout},
		{&c.AuthTimeout, d.AuthTimeout},
		{&c.ReauthInterval, d.ReauthInterval},
		{&c.ReauthGrace, d.ReauthGrace},
		{&c.ResolveTimeout, d.ResolveTimeout},
		{&c.RateWindow, d.RateWindow},
	}
	for _, x := range durations {
		if *x.v <= 0 {
			*x.v = x.def
		}
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	return c
}

// SplitCSV splits a comma separated list, trimming blanks.
func SplitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
