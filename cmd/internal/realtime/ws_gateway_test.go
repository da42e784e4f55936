package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	v1 "parley/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestGateway(t *testing.T, reg *Registry, members MembershipStore, metrics *Metrics) *WSGateway {
	t.Helper()
	cfg := testConfig()
	cfg.OriginRequired = false
	gw, err := NewWSGateway(discardLogger(), cfg, reg, defaultTokens(), members, metrics)
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}
	return gw
}

func startWSTestServer(t *testing.T, gw *WSGateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, baseHTTPURL, origin string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   h,
	})
}

func mustDialV1(t *testing.T, baseHTTPURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := dialWS(t, baseHTTPURL, "", v1.Subprotocol)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func writeFrameWS(t *testing.T, conn *websocket.Conn, f v1.Frame) {
	t.Helper()
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func authenticateWS(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	data, err := json.Marshal(token)
	if err != nil {
		t.Fatalf("marshal token: %v", err)
	}
	writeFrameWS(t, conn, v1.Frame{Type: v1.TypeAuthenticate, Data: data})
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) v1.Frame {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var f v1.Frame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if f.Type == typ {
			return f
		}
	}
	t.Fatalf("did not receive frame type %q", typ)
	return v1.Frame{}
}

// readCloseStatus reads until the server closes the connection.
func readCloseStatus(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func TestWSGateway_AuthenticateReceiveEventsAndPrune(t *testing.T) {
	reg := NewRegistry(nil)
	members := NewMemoryMembershipStore()
	members.Join("alice", "srv-1")

	gw := newTestGateway(t, reg, members, nil)
	ts := startWSTestServer(t, gw)

	conn := mustDialV1(t, ts.URL)
	if conn.Subprotocol() != v1.Subprotocol {
		t.Fatalf("subprotocol=%q", conn.Subprotocol())
	}

	authenticateWS(t, conn, "tok-alice")
	ack := readUntilType(t, conn, v1.TypeAuthenticated, 5)

	var payload v1.AuthenticatedPayload
	if err := json.Unmarshal(ack.Data, &payload); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if payload.UserID != "alice" || payload.SessionID == "" {
		t.Fatalf("ack=%+v", payload)
	}

	p := NewPublisher(nil, reg, nil)
	if res := p.PublishToRoom("srv-1", ChannelDelete("c1")); res.Delivered != 1 {
		t.Fatalf("publish result=%+v", res)
	}
	ev := readUntilType(t, conn, v1.TypeChannelDelete, 5)
	if string(ev.Data) != `{"id":"c1"}` {
		t.Fatalf("data=%s", ev.Data)
	}

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return !reg.IsOnline("alice") && !reg.HasRoom("srv-1") })
}

func TestWSGateway_UnauthorizedCloses1008(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m, err := NewMetrics(promReg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	gw := newTestGateway(t, NewRegistry(nil), nil, m)
	ts := startWSTestServer(t, gw)

	conn := mustDialV1(t, ts.URL)
	authenticateWS(t, conn, "not-a-valid-token")

	if code := readCloseStatus(t, conn); code != websocket.StatusPolicyViolation {
		t.Fatalf("close status=%d", code)
	}
	waitFor(t, 3*time.Second, func() bool {
		return testutil.ToFloat64(m.closes.WithLabelValues(ReasonUnauthorized.Label)) == 1
	})
	if got := testutil.ToFloat64(m.connections); got != 0 {
		t.Fatalf("open connections gauge=%v", got)
	}
}

func TestWSGateway_MissingSubprotocolRejected(t *testing.T) {
	gw := newTestGateway(t, NewRegistry(nil), nil, nil)
	ts := startWSTestServer(t, gw)

	conn, resp, err := dialWS(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if code := readCloseStatus(t, conn); code != websocket.StatusProtocolError {
		t.Fatalf("close status=%d", code)
	}
}

func TestWSGateway_OriginPolicy(t *testing.T) {
	reg := NewRegistry(nil)
	cfg := testConfig()
	cfg.OriginRequired = true
	cfg.AllowedOrigins = []string{"http://localhost"}

	gw, err := NewWSGateway(discardLogger(), cfg, reg, defaultTokens(), nil, nil)
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}
	ts := startWSTestServer(t, gw)

	cases := []struct {
		name   string
		origin string
		status int
	}{
		{"missing origin", "", http.StatusForbidden},
		{"foreign origin", "http://evil.example", http.StatusForbidden},
	}
	for _, tc := range cases {
		_, resp, err := dialWS(t, ts.URL, tc.origin, v1.Subprotocol)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			t.Fatalf("%s: expected handshake failure", tc.name)
		}
		if resp == nil || resp.StatusCode != tc.status {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			t.Fatalf("%s: expected %d, got status=%d err=%v", tc.name, tc.status, status, err)
		}
	}

	conn, resp, err := dialWS(t, ts.URL, "http://localhost", v1.Subprotocol)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	_ = conn.CloseNow()
}

func TestWSGateway_ShutdownClosesWithGoingAway(t *testing.T) {
	reg := NewRegistry(nil)
	gw := newTestGateway(t, reg, nil, nil)
	ts := startWSTestServer(t, gw)

	conn := mustDialV1(t, ts.URL)
	authenticateWS(t, conn, "tok-alice")
	readUntilType(t, conn, v1.TypeAuthenticated, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- gw.Shutdown(ctx) }()

	if code := readCloseStatus(t, conn); code != websocket.StatusGoingAway {
		t.Fatalf("close status=%d", code)
	}
	if err := <-done; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if reg.IsOnline("alice") {
		t.Fatalf("registry must be empty after shutdown")
	}

	_, resp, err := dialWS(t, ts.URL, "", v1.Subprotocol)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, err=%v", err)
	}
}

func TestNewWSGateway_RequiresRegistryAndResolver(t *testing.T) {
	if _, err := NewWSGateway(nil, DefaultConfig(), nil, defaultTokens(), nil, nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
	if _, err := NewWSGateway(nil, DefaultConfig(), NewRegistry(nil), nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil resolver")
	}
}

func TestOriginHelpers(t *testing.T) {
	hosts := map[string]string{
		"http://localhost":        "localhost",
		"https://App.Example:443": "app.example",
		"127.0.0.1:3000":          "127.0.0.1",
		"example.org":             "example.org",
		"":                        "",
		"http://":                 "",
	}
	for in, want := range hosts {
		if got := originHostOnly(in); got != want {
			t.Fatalf("originHostOnly(%q)=%q want %q", in, got, want)
		}
	}

	got := deriveOriginPatternsFromAllowedOrigins([]string{"http://localhost:5173", "http://localhost", "https://b.example", "*"})
	if want := []string{"*", "b.example", "localhost"}; !slices.Equal(got, want) {
		t.Fatalf("patterns=%v want %v", got, want)
	}
}
