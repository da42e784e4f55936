package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley/cmd/internal/app"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	key := strings.TrimSpace(out)
	b, err := hex.DecodeString(key)
	if err != nil {
		t.Fatalf("not hex: %q", key)
	}
	if len(b) != 64 {
		t.Fatalf("secret key length=%d want 64", len(b))
	}
}

func TestToken_RequiresUser(t *testing.T) {
	t.Setenv("PARLEY_AUTH_PASETO_SECRET_KEY_HEX", "")
	if _, err := execute(t, "token", "--user", ""); err == nil {
		t.Fatalf("expected error without --user")
	}
}

func TestTokenThenSmoke(t *testing.T) {
	keyOut, err := execute(t, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	t.Setenv("PARLEY_AUTH_PASETO_SECRET_KEY_HEX", strings.TrimSpace(keyOut))
	t.Setenv("PARLEY_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("PARLEY_DB_URL", "")

	tokOut, err := execute(t, "token", "--user", "u-smoke", "--ttl", "2m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tok := strings.TrimSpace(tokOut)
	if !strings.HasPrefix(tok, "v4.public.") {
		t.Fatalf("unexpected token %q", tok)
	}

	cfg, err := app.LoadConfig(nil, "")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := app.New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	out, err := execute(t, "smoke", "--url", wsURL, "--origin", "", "--token", tok, "--timeout", (3 * time.Second).String())
	if err != nil {
		t.Fatalf("smoke: %v", err)
	}
	if !strings.Contains(out, "OK session=") || !strings.Contains(out, "user=u-smoke") || !strings.Contains(out, "scopes=unrestricted") {
		t.Fatalf("unexpected smoke output %q", out)
	}

	if _, err := execute(t, "smoke", "--url", wsURL, "--origin", "", "--token", "not-a-token", "--timeout", "3s"); err == nil {
		t.Fatalf("smoke with a bad token should fail")
	}
}
