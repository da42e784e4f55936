package app

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/realtime"

	"github.com/spf13/viper"
)

const envPrefix = "PARLEY"

// Config is the server runtime configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Auth      AuthConfig      `mapstructure:"auth"`
	WS        WSConfig        `mapstructure:"ws"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "pretty"
}

type DBConfig struct {
	// URL empty selects in-memory stores.
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Schema   string `mapstructure:"schema"`
}

type ReadinessConfig struct {
	// RequireDB makes /readyz return 503 unless the DB is configured and reachable.
	RequireDB bool `mapstructure:"require_db"`
}

type AuthConfig struct {
	Issuer             string        `mapstructure:"issuer"`
	AccessTokenTTL     time.Duration `mapstructure:"access_token_ttl"`
	ClockSkew          time.Duration `mapstructure:"clock_skew"`
	PasetoSecretKeyHex string        `mapstructure:"paseto_secret_key_hex"`
	ResolveTimeout     time.Duration `mapstructure:"resolve_timeout"`
	TokenHMACKey       string        `mapstructure:"token_hmac_key"`
	RequireTokenHMAC   bool          `mapstructure:"require_token_hmac"`
}

type WSConfig struct {
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	OriginRequired    bool          `mapstructure:"origin_required"`
	DevInsecure       bool          `mapstructure:"dev_insecure"`
	SendQueue         int           `mapstructure:"send_queue"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxFrameBytes     int64         `mapstructure:"max_frame_bytes"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	AuthTimeout       time.Duration `mapstructure:"auth_timeout"`
	ReauthInterval    time.Duration `mapstructure:"reauth_interval"`
	ReauthGrace       time.Duration `mapstructure:"reauth_grace"`
	RateEvents        int           `mapstructure:"rate_events"`
	RateWindow        time.Duration `mapstructure:"rate_window"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	rt := realtime.DefaultConfig()
	sess := session.DefaultConfig()

	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_header_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("db.url", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.schema", "parley")

	v.SetDefault("readiness.require_db", false)

	v.SetDefault("auth.issuer", sess.Issuer)
	v.SetDefault("auth.access_token_ttl", sess.AccessTokenTTL)
	v.SetDefault("auth.clock_skew", sess.ClockSkew)
	v.SetDefault("auth.paseto_secret_key_hex", "")
	v.SetDefault("auth.resolve_timeout", rt.ResolveTimeout)
	v.SetDefault("auth.token_hmac_key", "")
	v.SetDefault("auth.require_token_hmac", false)

	v.SetDefault("ws.allowed_origins", rt.AllowedOrigins)
	v.SetDefault("ws.origin_required", rt.OriginRequired)
	v.SetDefault("ws.dev_insecure", false)
	v.SetDefault("ws.send_queue", rt.SendQueue)
	v.SetDefault("ws.write_timeout", rt.WriteTimeout)
	v.SetDefault("ws.max_frame_bytes", rt.MaxFrameBytes)
	v.SetDefault("ws.heartbeat_interval", rt.HeartbeatInterval)
	v.SetDefault("ws.heartbeat_timeout", rt.HeartbeatTimeout)
	v.SetDefault("ws.auth_timeout", rt.AuthTimeout)
	v.SetDefault("ws.reauth_interval", rt.ReauthInterval)
	v.SetDefault("ws.reauth_grace", rt.ReauthGrace)
	v.SetDefault("ws.rate_events", rt.RateEvents)
	v.SetDefault("ws.rate_window", rt.RateWindow)

	v.SetDefault("metrics.enabled", true)
}

// LoadConfig reads defaults, then the config file, then PARLEY_* environment
// variables. An empty path looks for parley.yaml in the working directory and
// tolerates its absence; an explicit path must exist.
func LoadConfig(log *slog.Logger, path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, err
		}
		if log != nil {
			log.Debug("config.file.absent", "using", "defaults+env")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.WS.AllowedOrigins = normalizeOrigins(cfg.WS.AllowedOrigins)
	return cfg, nil
}

// Env values arrive as a single "a,b" element.
func normalizeOrigins(in []string) []string {
	var out []string
	for _, s := range in {
		out = append(out, realtime.SplitCSV(s)...)
	}
	return out
}

// Realtime maps the ws/auth sections onto the gateway config.
func (c Config) Realtime() realtime.Config {
	return realtime.Config{
		DevInsecure:       c.WS.DevInsecure,
		OriginRequired:    c.WS.OriginRequired,
		AllowedOrigins:    c.WS.AllowedOrigins,
		SendQueue:         c.WS.SendQueue,
		WriteTimeout:      c.WS.WriteTimeout,
		MaxFrameBytes:     c.WS.MaxFrameBytes,
		HeartbeatInterval: c.WS.HeartbeatInterval,
		HeartbeatTimeout:  c.WS.HeartbeatTimeout,
		AuthTimeout:       c.WS.AuthTimeout,
		ReauthInterval:    c.WS.ReauthInterval,
		ReauthGrace:       c.WS.ReauthGrace,
		ResolveTimeout:    c.Auth.ResolveTimeout,
		RateEvents:        c.WS.RateEvents,
		RateWindow:        c.WS.RateWindow,
	}
}

// Session maps the auth section onto the token config.
func (c Config) Session() session.Config {
	return session.Config{
		Issuer:               c.Auth.Issuer,
		AccessTokenTTL:       c.Auth.AccessTokenTTL,
		ClockSkew:            c.Auth.ClockSkew,
		PasetoV4SecretKeyHex: c.Auth.PasetoSecretKeyHex,
	}
}
