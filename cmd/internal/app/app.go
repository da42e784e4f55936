// Package app wires the Parley server runtime: config, logging, HTTP routes and
// the realtime gateway with its identity and membership backends.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"parley/cmd/internal/auth/session"
	"parley/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var _ realtime.IdentityResolver = (*session.Resolver)(nil)

// App is the Parley server runtime: it owns the HTTP server, the connection
// registry and the gateway dependencies.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	registry  *realtime.Registry
	publisher *realtime.Publisher
	ws        *realtime.WSGateway

	prom *prometheus.Registry
}

// New constructs a fully wired App. With db.url empty the membership store is
// in memory and first-party tokens are verified without a session lookup.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Log.Level, cfg.Log.Format)
	}

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := session.NewPasetoV4PublicManager(cfg.Session())
	if err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}

	a := &App{cfg: cfg, log: log}

	var members realtime.MembershipStore
	resolverOpts := []session.ResolverOption{}

	if strings.TrimSpace(cfg.DB.URL) == "" {
		log.Info("db.disabled.inmemory_store")
		members = realtime.NewMemoryMembershipStore()
	} else {
		pool, err := NewDBPool(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool

		sessions, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DB.Schema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		pgMembers, err := realtime.NewPostgresMembershipStore(pool, realtime.WithMembershipSchema(cfg.DB.Schema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		members = pgMembers
		resolverOpts = append(resolverOpts,
			session.WithSessionStore(sessions),
			session.WithDelegatedStore(sessions, hasher),
		)
		log.Info("db.enabled.postgres_store", "schema", cfg.DB.Schema, "token_hmac", hasher.HMAC())
	}

	resolver, err := session.NewResolver(tokens, resolverOpts...)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	a.registry = realtime.NewRegistry(log)

	var metrics *realtime.Metrics
	if cfg.Metrics.Enabled {
		a.prom = prometheus.NewRegistry()
		a.prom.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if metrics, err = realtime.NewMetrics(a.prom); err != nil {
			a.closeDB()
			return nil, err
		}
		if err := a.registry.RegisterMetrics(a.prom); err != nil {
			a.closeDB()
			return nil, err
		}
	}

	a.publisher = realtime.NewPublisher(log, a.registry, metrics)

	a.ws, err = realtime.NewWSGateway(log, cfg.Realtime(), a.registry, resolver, members, metrics)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	return a, nil
}

// Publisher is the fanout entry point for domain services sharing this process.
func (a *App) Publisher() *realtime.Publisher { return a.publisher }

// Handler returns the HTTP handler with every route and middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	var gatherer prometheus.Gatherer
	if a.prom != nil {
		gatherer = a.prom
	}
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.ws, gatherer)

	return WithRequestID(WithSecurityHeaders(WithRequestLogging(mux, a.log)))
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. Open sockets are closed with 1001 before the listener drains.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.HTTP.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.HTTP.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.HTTP.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.HTTP.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.HTTP.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTP.Addr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTP.Addr,
		"http", base,
		"ws", wsBaseURL(base)+"/ws",
		"db_enabled", a.dbPool != nil,
		"metrics_enabled", a.prom != nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.ws.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("ws.shutdown.incomplete", "err", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http: shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.closeDB()
	if err != nil {
		a.log.Error("server.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeDB() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard hosts map to the IPv4 loopback.
func runtimeBaseURL(addr string) string {
	addr = strings.TrimSpace(addr)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(base, "http://"); ok {
		return "ws://" + rest
	}
	return "ws://" + base
}
