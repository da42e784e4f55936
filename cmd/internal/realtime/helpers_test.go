package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parley/cmd/internal/scope"
	v1 "parley/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// fakeTransport is an in-memory transport driven by the test.
type fakeTransport struct {
	in      chan inbound
	written chan []byte
	noPong  atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
	mu        sync.Mutex
	code      websocket.StatusCode
	reason    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:      make(chan inbound, 16),
		written: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case in := <-f.in:
		return in.typ, in.data, in.err
	case <-f.closed:
		return 0, nil, net.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	select {
	case f.written <- append([]byte(nil), p...):
		return nil
	case <-f.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	if f.noPong.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeTransport) Close(code websocket.StatusCode, reason string) error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.code, f.reason = code, reason
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) closeFrame() (websocket.StatusCode, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, f.reason
}

func (f *fakeTransport) sendJSON(t *testing.T, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	f.sendText(t, string(b))
}

func (f *fakeTransport) sendText(t *testing.T, s string) {
	t.Helper()
	select {
	case f.in <- inbound{typ: websocket.MessageText, data: []byte(s)}:
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound queue blocked")
	}
}

func (f *fakeTransport) authenticate(t *testing.T, token string) {
	t.Helper()
	f.sendJSON(t, map[string]any{"type": v1.TypeAuthenticate, "data": token})
}

// expectFrame reads written frames until one of type typ arrives.
func (f *fakeTransport) expectFrame(t *testing.T, typ string) v1.Frame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case b := <-f.written:
			var fr v1.Frame
			if err := json.Unmarshal(b, &fr); err != nil {
				t.Fatalf("unmarshal frame: %v (%s)", err, b)
			}
			if fr.Type == typ {
				return fr
			}
		case <-deadline:
			t.Fatalf("did not receive frame type %q", typ)
			return v1.Frame{}
		}
	}
}

type principal struct {
	userID string
	grant  scope.Grant
}

// tokenTable resolves fixed tokens. Unknown tokens are unauthorized.
type tokenTable map[string]principal

func (tt tokenTable) Resolve(ctx context.Context, token string) (string, scope.Grant, error) {
	if err := ctx.Err(); err != nil {
		return "", scope.Grant{}, err
	}
	p, ok := tt[token]
	if !ok {
		return "", scope.Grant{}, errors.New("unknown token")
	}
	return p.userID, p.grant, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AuthTimeout = 2 * time.Second
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.HeartbeatTimeout = 2 * time.Second
	cfg.ReauthInterval = time.Hour
	cfg.ReauthGrace = 2 * time.Second
	cfg.ResolveTimeout = time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type connHarness struct {
	ft    *fakeTransport
	c     *conn
	done  chan CloseReason
	start time.Time
	stop  context.CancelFunc
}

func startConn(t *testing.T, cfg Config, reg *Registry, resolver IdentityResolver, members MembershipStore, sessionID string) *connHarness {
	t.Helper()
	if members == nil {
		members = NewMemoryMembershipStore()
	}
	deps := connDeps{
		log:      discardLogger(),
		cfg:      cfg.Normalize(),
		reg:      reg,
		resolver: resolver,
		members:  members,
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &connHarness{
		ft:    newFakeTransport(),
		done:  make(chan CloseReason, 1),
		start: time.Now(),
		stop:  cancel,
	}
	h.c = newConn(deps, h.ft, sessionID)
	go func() { h.done <- h.c.run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func (h *connHarness) waitClosed(t *testing.T, within time.Duration) CloseReason {
	t.Helper()
	select {
	case r := <-h.done:
		code, text := h.ft.closeFrame()
		if code != r.Code || text != r.Text {
			t.Fatalf("close frame (%d,%q) does not match reason %+v", code, text, r)
		}
		return r
	case <-time.After(within):
		t.Fatalf("connection did not close within %s", within)
		return CloseReason{}
	}
}

func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", within)
}

// recordingSender captures payloads delivered by the fanout engine.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

func (s *recordingSender) Send(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse {
		return false
	}
	s.frames = append(s.frames, b)
	return true
}

func (s *recordingSender) types(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, b := range s.frames {
		var fr v1.Frame
		if err := json.Unmarshal(b, &fr); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out = append(out, fr.Type)
	}
	return out
}
