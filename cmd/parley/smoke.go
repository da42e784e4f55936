package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "parley/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

const smokeMaxReadBytes = 1 << 20

var (
	smokeURL     string
	smokeOrigin  string
	smokeToken   string
	smokeWait    time.Duration
	smokeTimeout time.Duration
	smokeEvents  int
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Connect, authenticate and print pushed events",
	Long: `Open a websocket to a running server, authenticate with --token and print
every event frame as "<type> <data>". Reauthenticate requests are answered with
the same token. Exits non-zero on a handshake failure, a missing
acknowledgement, or an abnormal close.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(smokeToken) == "" {
			return errors.New("--token is required")
		}
		if err := validateWSURL(smokeURL); err != nil {
			return fmt.Errorf("invalid --url: %w", err)
		}
		return runSmoke(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	smokeCmd.Flags().StringVar(&smokeURL, "url", "ws://127.0.0.1:8080/ws", "websocket URL")
	smokeCmd.Flags().StringVar(&smokeOrigin, "origin", "http://localhost", "Origin header (empty to omit)")
	smokeCmd.Flags().StringVar(&smokeToken, "token", "", "credential sent in the authenticate frame")
	smokeCmd.Flags().DurationVar(&smokeWait, "wait", 0, "keep reading events for this long (0 exits after the ack)")
	smokeCmd.Flags().DurationVar(&smokeTimeout, "timeout", 7*time.Second, "handshake and ack timeout")
	smokeCmd.Flags().IntVar(&smokeEvents, "events", 0, "exit after this many events (0 = no limit)")
	rootCmd.AddCommand(smokeCmd)
}

func runSmoke(parent context.Context, out io.Writer) error {
	dialCtx, cancel := context.WithTimeout(parent, smokeTimeout)
	defer cancel()

	h := http.Header{}
	if o := strings.TrimSpace(smokeOrigin); o != "" {
		h.Set("Origin", o)
	}

	conn, resp, err := websocket.Dial(dialCtx, smokeURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.CloseNow()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		return fmt.Errorf("subprotocol mismatch: got=%q want=%q", sp, v1.Subprotocol)
	}
	conn.SetReadLimit(smokeMaxReadBytes)

	if err := sendAuthenticate(dialCtx, conn, smokeToken); err != nil {
		return err
	}

	f, err := readFrame(dialCtx, conn)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", v1.TypeAuthenticated, err)
	}
	if f.Type != v1.TypeAuthenticated {
		return fmt.Errorf("unexpected first frame %q", f.Type)
	}
	var ack v1.AuthenticatedPayload
	if err := json.Unmarshal(f.Data, &ack); err != nil {
		return fmt.Errorf("decode %s: %w", v1.TypeAuthenticated, err)
	}
	scopes := "unrestricted"
	if len(ack.Scopes) > 0 {
		scopes = strings.Join(ack.Scopes, ",")
	}
	fmt.Fprintf(out, "OK session=%s user=%s scopes=%s\n", ack.SessionID, ack.UserID, scopes)

	if smokeWait <= 0 {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		return nil
	}

	ctx, stop := context.WithTimeout(parent, smokeWait)
	defer stop()

	seen := 0
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if code := websocket.CloseStatus(err); code != -1 {
				return fmt.Errorf("server closed: %d", code)
			}
			return err
		}

		switch f.Type {
		case v1.TypeReauthenticate:
			fmt.Fprintln(out, "reauthenticate")
			if err := sendAuthenticate(ctx, conn, smokeToken); err != nil {
				return err
			}
		case v1.TypeAuthenticated:
			fmt.Fprintln(out, "authenticated")
		default:
			fmt.Fprintf(out, "%s %s\n", f.Type, f.Data)
			seen++
			if smokeEvents > 0 && seen >= smokeEvents {
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return nil
			}
		}
	}
}

func sendAuthenticate(ctx context.Context, conn *websocket.Conn, tok string) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v1.Frame{Type: v1.TypeAuthenticate, Data: data})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write authenticate: %w", err)
	}
	return nil
}

func readFrame(ctx context.Context, conn *websocket.Conn) (v1.Frame, error) {
	mt, b, err := conn.Read(ctx)
	if err != nil {
		return v1.Frame{}, err
	}
	if mt != websocket.MessageText {
		return v1.Frame{}, fmt.Errorf("unexpected message type %v", mt)
	}
	var f v1.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return v1.Frame{}, fmt.Errorf("bad json: %w", err)
	}
	if err := f.Validate(); err != nil {
		return v1.Frame{}, err
	}
	return f, nil
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}
