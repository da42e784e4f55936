package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"parley/cmd/internal/scope"
	v1 "parley/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

// transport is the subset of *websocket.Conn used by a connection loop.
type transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

var _ transport = (*websocket.Conn)(nil)

// State is the protocol state of one connection.
type State uint8

const (
	StateConnecting State = iota
	StateAuthenticated
	StateReauthPending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReauthPending:
		return "reauth_pending"
	default:
		return "closed"
	}
}

// CloseReason is the terminal outcome of a connection: the close frame sent to
// the peer plus a stable label for logs and metrics.
type CloseReason struct {
	Code  websocket.StatusCode
	Text  string
	Label string
}

var (
	ReasonAuthTimeout    = CloseReason{websocket.StatusPolicyViolation, "authentication timeout", "auth_timeout"}
	ReasonUnauthorized   = CloseReason{websocket.StatusPolicyViolation, "unauthorized", "unauthorized"}
	ReasonCannotReauth   = CloseReason{websocket.StatusPolicyViolation, "cannot reauthenticate", "cannot_reauthenticate"}
	ReasonReauthTimeout  = CloseReason{websocket.StatusPolicyViolation, "reauthentication timeout", "reauth_timeout"}
	ReasonHeartbeat      = CloseReason{websocket.StatusPolicyViolation, "heartbeat timeout", "heartbeat_timeout"}
	ReasonMalformed      = CloseReason{websocket.StatusInvalidFramePayloadData, "malformed frame", "malformed_frame"}
	ReasonUnsupported    = CloseReason{websocket.StatusPolicyViolation, "unsupported frame", "unsupported_frame"}
	ReasonBinary         = CloseReason{websocket.StatusUnsupportedData, "unsupported data", "binary_frame"}
	ReasonRateLimited    = CloseReason{websocket.StatusPolicyViolation, "rate limited", "rate_limited"}
	ReasonInternal       = CloseReason{websocket.StatusInternalError, "internal error", "internal_error"}
	ReasonWriteFailed    = CloseReason{websocket.StatusInternalError, "write failed", "write_failed"}
	ReasonQueueFull      = CloseReason{websocket.StatusTryAgainLater, "send queue full", "queue_full"}
	ReasonReadFailed     = CloseReason{websocket.StatusProtocolError, "read failed", "read_failed"}
	ReasonShutdown       = CloseReason{websocket.StatusGoingAway, "server shutting down", "shutdown"}
	ReasonPeerClosed     = CloseReason{websocket.StatusNormalClosure, "", "peer_closed"}
	ReasonTransportClose = CloseReason{websocket.StatusNormalClosure, "", "transport_closed"}
)

// connDeps are the collaborators shared by every connection of a gateway.
type connDeps struct {
	log      *slog.Logger
	cfg      Config
	reg      *Registry
	resolver IdentityResolver
	members  MembershipStore
	metrics  *Metrics
}

type inbound struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// conn drives the protocol for one transport. All fields below deps are owned
// by the run goroutine.
type conn struct {
	deps      connDeps
	t         transport
	client    *Client
	sessionID string
	log       *slog.Logger

	state    State
	userID   string
	grant    scope.Grant
	authedAt time.Time
	lastSeen time.Time
	deadline time.Time
	timer    *time.Timer
	rl       *RateLimiter
}

func newConn(deps connDeps, t transport, sessionID string) *conn {
	return &conn{
		deps:      deps,
		t:         t,
		client:    NewClient(sessionID, deps.cfg.SendQueue),
		sessionID: sessionID,
		log:       deps.log.With("session_id", sessionID),
		rl:        NewRateLimiter(deps.cfg.RateEvents, deps.cfg.RateWindow),
	}
}

// run drives the connection until it closes and returns the close reason.
// Closing always happens here, after deregistration.
func (c *conn) run(ctx context.Context) CloseReason {
	// Cancelling a context passed to the transport tears the socket down, so
	// transport I/O runs on ioCtx, which outlives ctx until the close frame is sent.
	ioCtx, ioCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer ioCancel()

	c.deps.metrics.connOpened()

	frames := make(chan inbound)
	go c.readLoop(ioCtx, frames)

	writeErrs := make(chan error, 1)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ioCtx, writeErrs)
	}()

	now := time.Now()
	c.lastSeen = now
	c.timer = time.NewTimer(c.deps.cfg.AuthTimeout)
	c.deadline = now.Add(c.deps.cfg.AuthTimeout)
	defer c.timer.Stop()

	reason := c.loop(ctx, ioCtx, frames, writeErrs)
	c.finish(reason)

	ioCancel()
	<-writerDone
	return reason
}

func (c *conn) loop(ctx, ioCtx context.Context, frames <-chan inbound, writeErrs <-chan error) CloseReason {
	hb := time.NewTicker(c.deps.cfg.HeartbeatInterval)
	defer hb.Stop()

	pongs := make(chan error, 1)
	pinging := false

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown

		case in := <-frames:
			if in.err != nil {
				return c.classifyReadErr(in.err)
			}
			if r, done := c.onFrame(ctx, in); done {
				return r
			}

		case now := <-hb.C:
			if now.Sub(c.lastSeen) > c.deps.cfg.HeartbeatTimeout {
				return ReasonHeartbeat
			}
			if !pinging {
				pinging = true
				go func() {
					pctx, pcancel := context.WithTimeout(ioCtx, c.deps.cfg.HeartbeatTimeout)
					defer pcancel()
					pongs <- c.t.Ping(pctx)
				}()
			}

		case err := <-pongs:
			pinging = false
			if err == nil {
				c.lastSeen = time.Now()
			} else {
				c.log.Debug("ws.ping.fail", "err", err)
			}

		case err := <-writeErrs:
			c.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
			return ReasonWriteFailed

		case <-c.timer.C:
			if r, done := c.onDeadline(); done {
				return r
			}
		}
	}
}

func (c *conn) readLoop(ctx context.Context, out chan<- inbound) {
	for {
		typ, data, err := c.t.Read(ctx)
		select {
		case out <- inbound{typ: typ, data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *conn) writeLoop(ctx context.Context, errs chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.client.Done():
			return
		case b := <-c.client.Queue():
			wctx, cancel := context.WithTimeout(ctx, c.deps.cfg.WriteTimeout)
			err := c.t.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				select {
				case errs <- err:
				default:
				}
				return
			}
		}
	}
}

func (c *conn) onFrame(ctx context.Context, in inbound) (CloseReason, bool) {
	now := time.Now()
	c.lastSeen = now

	if !c.rl.Allow(now) {
		return ReasonRateLimited, true
	}
	if in.typ != websocket.MessageText {
		return ReasonBinary, true
	}
	if !gjson.ValidBytes(in.data) {
		return ReasonMalformed, true
	}
	typ := gjson.GetBytes(in.data, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		return ReasonMalformed, true
	}

	switch typ.Str {
	case v1.TypeAuthenticate:
		var f v1.Frame
		if err := json.Unmarshal(in.data, &f); err != nil {
			return ReasonMalformed, true
		}
		return c.onAuthenticate(ctx, f)
	default:
		c.log.Info("ws.frame.unsupported", "type", typ.Str)
		return ReasonUnsupported, true
	}
}

func (c *conn) onAuthenticate(ctx context.Context, f v1.Frame) (CloseReason, bool) {
	if c.state == StateAuthenticated {
		return ReasonCannotReauth, true
	}

	token, err := f.AuthenticateToken()
	if err != nil {
		return ReasonMalformed, true
	}
	if len(token) > maxTokenBytes {
		return ReasonUnauthorized, true
	}

	rctx, cancel := context.WithTimeout(ctx, c.deps.cfg.ResolveTimeout)
	if !c.deadline.IsZero() {
		var dcancel context.CancelFunc
		rctx, dcancel = context.WithDeadline(rctx, c.deadline)
		defer dcancel()
	}
	userID, grant, err := c.deps.resolver.Resolve(rctx, token)
	cancel()

	if ctx.Err() != nil {
		return ReasonShutdown, true
	}
	if !c.deadline.IsZero() && !time.Now().Before(c.deadline) {
		if c.state == StateConnecting {
			return ReasonAuthTimeout, true
		}
		return ReasonReauthTimeout, true
	}
	if err != nil || userID == "" {
		c.log.Info("ws.auth.fail", "state", c.state.String(), "err", err)
		return ReasonUnauthorized, true
	}

	if c.state == StateReauthPending {
		return c.reauthenticate(userID, grant)
	}
	return c.authenticate(ctx, userID, grant)
}

func (c *conn) authenticate(ctx context.Context, userID string, grant scope.Grant) (CloseReason, bool) {
	first := c.deps.reg.RegisterSession(userID, c.sessionID, grant, c.client)
	c.userID = userID
	c.grant = grant
	c.state = StateAuthenticated
	c.log = c.log.With("user_id", userID)

	mctx, cancel := context.WithTimeout(ctx, c.deps.cfg.ResolveTimeout)
	rooms, err := c.deps.members.RoomsForUser(mctx, userID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ReasonShutdown, true
		}
		c.log.Error("ws.membership.fail", "err", err)
		return ReasonInternal, true
	}
	for _, roomID := range rooms {
		c.deps.reg.SyncRoomMembership(roomID, userID, true)
	}

	c.markAuthenticated()
	c.log.Info("ws.auth.ok", "first_session", first, "rooms", len(rooms), "scopes", grant.String())
	return c.sendAuthenticated()
}

func (c *conn) reauthenticate(userID string, grant scope.Grant) (CloseReason, bool) {
	if userID != c.userID {
		c.log.Warn("ws.reauth.identity_change", "new_user_id", userID)
		return ReasonUnauthorized, true
	}
	if grant.Exceeds(c.grant) {
		c.log.Warn("ws.reauth.scope_escalation", "old", c.grant.String(), "new", grant.String())
		return ReasonUnauthorized, true
	}

	c.deps.reg.RegisterSession(userID, c.sessionID, grant, c.client)
	c.grant = grant
	c.state = StateAuthenticated
	c.markAuthenticated()
	c.log.Info("ws.reauth.ok", "scopes", grant.String())
	return c.sendAuthenticated()
}

func (c *conn) markAuthenticated() {
	c.authedAt = time.Now()
	c.deadline = time.Time{}
	c.timer.Reset(c.deps.cfg.ReauthInterval)
	c.deps.metrics.authOK()
}

func (c *conn) sendAuthenticated() (CloseReason, bool) {
	b, err := json.Marshal(v1.AuthenticatedPayload{
		SessionID: c.sessionID,
		UserID:    c.userID,
		Scopes:    c.grant.Names(),
	})
	if err != nil {
		return ReasonInternal, true
	}
	return c.sendControl(v1.Frame{Type: v1.TypeAuthenticated, Data: b})
}

func (c *conn) sendControl(f v1.Frame) (CloseReason, bool) {
	b, err := json.Marshal(f)
	if err != nil {
		return ReasonInternal, true
	}
	if !c.client.Send(b) {
		return ReasonQueueFull, true
	}
	return CloseReason{}, false
}

// onDeadline handles the single state dependent timer.
func (c *conn) onDeadline() (CloseReason, bool) {
	switch c.state {
	case StateConnecting:
		return ReasonAuthTimeout, true
	case StateAuthenticated:
		c.state = StateReauthPending
		c.deadline = time.Now().Add(c.deps.cfg.ReauthGrace)
		c.timer.Reset(c.deps.cfg.ReauthGrace)
		c.log.Info("ws.reauth.request", "authenticated_for", time.Since(c.authedAt).String())
		return c.sendControl(v1.Frame{Type: v1.TypeReauthenticate})
	case StateReauthPending:
		return ReasonReauthTimeout, true
	default:
		return CloseReason{}, false
	}
}

func (c *conn) classifyReadErr(err error) CloseReason {
	if websocket.CloseStatus(err) != -1 {
		return ReasonPeerClosed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonShutdown
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return ReasonTransportClose
	}
	c.log.Info("ws.read.fail", "err", err)
	return ReasonReadFailed
}

// finish runs once on entry to Closed: stop the writer, deregister, send the
// close frame, then prune room membership if this was the user's last session.
func (c *conn) finish(reason CloseReason) {
	wasAuthenticated := c.state == StateAuthenticated || c.state == StateReauthPending
	c.state = StateClosed
	c.client.Close()

	last := false
	if wasAuthenticated {
		last = c.deps.reg.DeregisterSession(c.userID, c.sessionID)
	}

	if err := c.t.Close(reason.Code, reason.Text); err != nil {
		c.log.Debug("ws.close.fail", "err", err)
	}

	if last {
		c.pruneRooms()
	}

	c.deps.metrics.connClosed(reason.Label)
	c.log.Info("ws.close", "code", int(reason.Code), "reason", reason.Label, "was_authenticated", wasAuthenticated)
}

func (c *conn) pruneRooms() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	rooms, err := c.deps.members.RoomsForUser(ctx, c.userID)
	if err != nil {
		c.log.Warn("ws.prune.membership_fail", "err", err)
		rooms = c.deps.reg.RoomsContaining(c.userID)
	}
	c.deps.reg.PruneUser(c.userID, rooms)
}
