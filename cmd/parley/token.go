package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parley/cmd/identity/ids"
	"parley/cmd/internal/app"
	"parley/cmd/internal/auth/session"

	"github.com/spf13/cobra"
)

var (
	tokenUserID     string
	tokenSessionID  string
	tokenTTL        time.Duration
	tokenSessionTTL time.Duration

	revokeSessionID string
	revokeReason    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a first-party access token for a user",
	Long: `Mint a first-party access token signed with auth.paseto_secret_key_hex.

When db.url is configured and --session is empty, a session row is created so
the token survives the server's revocation check. Without a database the
session id is random and only the signature is checked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := strings.TrimSpace(tokenUserID)
		if userID == "" {
			return errors.New("--user is required")
		}

		cfg, err := app.LoadConfig(nil, cfgFile)
		if err != nil {
			return err
		}
		if tokenTTL > 0 {
			cfg.Auth.AccessTokenTTL = tokenTTL
		}

		tokens, err := session.NewPasetoV4PublicManager(cfg.Session())
		if err != nil {
			return fmt.Errorf("auth config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		now := time.Now().UTC()
		sessionID := strings.TrimSpace(tokenSessionID)
		if sessionID == "" {
			sessionID, err = newSessionRow(ctx, cfg, userID, now)
			if err != nil {
				return err
			}
		}

		tok, exp, err := tokens.Issue(userID, sessionID, now)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "user=%s session=%s expires=%s\n", userID, sessionID, exp.Format(time.RFC3339))
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a session so its tokens stop authenticating",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.TrimSpace(revokeSessionID)
		if id == "" {
			return errors.New("--session is required")
		}

		cfg, err := app.LoadConfig(nil, cfgFile)
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("revoke needs db.url")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		pool, err := app.NewDBPool(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer pool.Close()

		store, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DB.Schema))
		if err != nil {
			return err
		}
		if err := store.Revoke(ctx, time.Now().UTC(), id, revokeReason); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
		return nil
	},
}

func newSessionRow(ctx context.Context, cfg app.Config, userID string, now time.Time) (string, error) {
	if strings.TrimSpace(cfg.DB.URL) == "" {
		return ids.NewULID(now)
	}

	pool, err := app.NewDBPool(ctx, cfg.DB)
	if err != nil {
		return "", err
	}
	defer pool.Close()

	store, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DB.Schema))
	if err != nil {
		return "", err
	}
	return store.Create(ctx, now, userID, now.Add(tokenSessionTTL))
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id the token acts for")
	tokenCmd.Flags().StringVar(&tokenSessionID, "session", "", "existing session id (default: create one)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "access token lifetime (default auth.access_token_ttl)")
	tokenCmd.Flags().DurationVar(&tokenSessionTTL, "session-ttl", 30*24*time.Hour, "lifetime of a created session row")
	rootCmd.AddCommand(tokenCmd)

	revokeCmd.Flags().StringVar(&revokeSessionID, "session", "", "session id to revoke")
	revokeCmd.Flags().StringVar(&revokeReason, "reason", "operator", "revocation reason")
	rootCmd.AddCommand(revokeCmd)
}
