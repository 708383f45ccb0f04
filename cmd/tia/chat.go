package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/tia-chat/internal/client"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			serverURL := cfg.ServerURL
			if s, _ := cmd.Flags().GetString("server"); s != "" {
				serverURL = s
			}
			sessionID, _ := cmd.Flags().GetString("session")

			c := client.New(serverURL, client.WithPolling(cfg.PollInterval(), cfg.PollTimeout()))
			interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

			return runChat(cmd.Context(), c, sessionID, os.Stdin, cmd.OutOrStdout(), interactive)
		},
	}

	cmd.Flags().String("server", "", "server base URL (overrides config)")
	cmd.Flags().String("session", "", "session id (defaults to the server's default session)")

	return cmd
}

// runChat reads one message per line from in and prints each reply to out.
// Empty lines are skipped; "/quit" or EOF ends the loop.
func runChat(ctx context.Context, c *client.Client, sessionID string, in io.Reader, out io.Writer, interactive bool) error {
	title := ""
	if sessionID == "" {
		sess, err := c.DefaultSession(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch default session")
		}
		sessionID, title = sess.ID, sess.Title
	}

	history, err := c.ListMessages(ctx, sessionID)
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		history = nil
	case err != nil:
		return errors.Wrap(err, "load history")
	}

	if title != "" {
		fmt.Fprintf(out, "%s (%s)\n", title, sessionID)
	} else {
		fmt.Fprintf(out, "session %s\n", sessionID)
	}
	for _, m := range history {
		printMessage(out, m)
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}

		start := time.Now()
		sent, answer, err := c.Send(ctx, sessionID, line)
		if sent != nil && !interactive {
			printMessage(out, *sent)
		}
		switch {
		case errors.Is(err, client.ErrReplyTimeout):
			fmt.Fprintln(out, "(no reply yet, try again later)")
			continue
		case err != nil:
			return err
		}
		printMessage(out, *answer)
		fmt.Fprintf(out, "(replied in %s)\n", strings.ToLower(units.HumanDuration(time.Since(start))))
	}
	return scanner.Err()
}

func printMessage(out io.Writer, m client.Message) {
	who := "you"
	if m.Role == "assistant" {
		who = "tia"
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.Kitchen), who, m.Content)
}
