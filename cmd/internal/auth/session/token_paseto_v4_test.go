package session

import (
	"errors"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestManager(t *testing.T) AccessTokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = NewSecretKeyHex()

	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}
	return mgr
}

func TestPasetoV4_IssueAndVerify(t *testing.T) {
	mgr := newTestManager(t)

	now := time.Now().UTC()
	tok, exp, err := mgr.Issue("01HZZZZZZZZZZZZZZZZZZZZZZZ", "01HYYYYYYYYYYYYYYYYYYYYYYY", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := mgr.Verify(tok, now.Add(1*time.Second))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "01HZZZZZZZZZZZZZZZZZZZZZZZ" || claims.SessionID != "01HYYYYYYYYYYYYYYYYYYYYYYY" {
		t.Fatalf("claims=%+v", claims)
	}
	if claims.Issuer != "parley" {
		t.Fatalf("issuer=%q", claims.Issuer)
	}
}

func TestPasetoV4_VerifyRejects(t *testing.T) {
	mgr := newTestManager(t)
	other := newTestManager(t)
	now := time.Now().UTC()

	tok, _, err := mgr.Issue("user-1", "sess-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := mgr.Verify(tok, now.Add(time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: got %v", err)
	}
	if _, err := other.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign key: got %v", err)
	}
	if _, err := mgr.Verify("v4.public.garbage", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: got %v", err)
	}
	if _, _, err := mgr.Issue("", "sess-1", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty user: got %v", err)
	}
}

func TestPasetoV4_VerifyUsesGivenClock(t *testing.T) {
	mgr := newTestManager(t)

	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tok, exp, err := mgr.Issue("user-1", "sess-1", issued)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := mgr.Verify(tok, issued.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify at issued+1m: %v", err)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("exp=%v want=%v", claims.ExpiresAt, exp)
	}
	if _, err := mgr.Verify(tok, exp.Add(time.Second)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("after exp: got %v", err)
	}
}

func TestPasetoV4_MissingClaimsRejected(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = secret.ExportHex()
	mgr, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("NewPasetoV4PublicManager: %v", err)
	}

	now := time.Now().UTC()
	tok := paseto.NewToken()
	tok.SetIssuer(cfg.Issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(time.Minute))
	_ = tok.Set("uid", "user-1")
	signed := tok.V4Sign(secret, nil)

	if _, err := mgr.Verify(signed, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing sid: got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing key", func(c *Config) { c.PasetoV4SecretKeyHex = " " }, false},
		{"blank issuer", func(c *Config) { c.Issuer = "" }, false},
		{"zero ttl", func(c *Config) { c.AccessTokenTTL = 0 }, false},
		{"negative skew", func(c *Config) { c.ClockSkew = -time.Second }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.PasetoV4SecretKeyHex = NewSecretKeyHex()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = "not-hex"
	if _, err := NewPasetoV4PublicManager(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("bad key: got %v", err)
	}
}
