package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdgteacher/sdgchat/internal/backend"
	"github.com/sdgteacher/sdgchat/internal/locket"
)

// readPassword takes the password from the flag, or the first line of in.
func readPassword(cmd *cobra.Command, in io.Reader) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type authFunc func(ctx context.Context, username, password string) (backend.AuthResponse, error)

// authenticate runs fn and, on success, makes username the active profile.
func authenticate(ctx context.Context, a *app, fn authFunc, username, password string) error {
	resp, err := fn(ctx, username, password)
	if err != nil {
		return err
	}
	if resp.Username != "" {
		username = resp.Username
	}
	p, err := a.chat.StartSession(ctx, username)
	if err != nil {
		return err
	}
	printSuccess("Signed in as %s (session %d)", p.Username, p.SessionsCount)
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in to the backend and select the profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd, os.Stdin)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return authenticate(ctx, a, a.client.Login, args[0], password)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create a backend account and select the profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd, os.Stdin)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return authenticate(ctx, a, a.client.Register, args[0], password)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the active profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		who := a.chat.Username()
		if err := a.chat.EndSession(); err != nil {
			return err
		}
		if who != "" {
			printSuccess("Signed out %s", who)
		}
		return nil
	},
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show or reset the session identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		user := a.chat.Username()
		if user == "" {
			user = "(none)"
		}
		printStatus("Session", "%s", a.chat.SessionID())
		printStatus("Profile", "%s", user)
		printStatus("Mode", "%s", a.chat.Mode())
		printStatus("Backend", "%s", a.client.BaseURL())
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Generate a new session id",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Reset(); err != nil {
			return err
		}
		printSuccess("New session %s", a.session.ID())
		return nil
	},
}

// --- locket ---

func locketPoller(a *app, username string) *locket.Poller {
	return locket.NewPoller(a.client, username, cfg.Locket.PollInterval)
}

func connectedLabel(connected bool) string {
	if connected {
		return render(successStyle, "connected")
	}
	return render(warningStyle, "disconnected")
}

var locketCmd = &cobra.Command{
	Use:   "locket",
	Short: "Show the active profile's locket status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		username := a.chat.Username()
		if username == "" {
			return fmt.Errorf("no active profile; pass --user or run sdgchat login")
		}

		watch, _ := cmd.Flags().GetBool("watch")
		if !watch {
			st, err := a.client.LocketStatus(ctx, username)
			if err != nil {
				return err
			}
			printStatus("Locket", "%s", connectedLabel(st.Connected))
			return nil
		}

		p := locketPoller(a, username)
		p.OnChange = func(connected bool) {
			printStatus("Locket", "%s", connectedLabel(connected))
		}
		p.Run(ctx)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().String("password", "", "password (read from stdin when omitted)")
	}
	sessionCmd.AddCommand(sessionResetCmd)
	locketCmd.Flags().BoolP("watch", "w", false, "keep polling and report changes")
}
