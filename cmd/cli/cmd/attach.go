package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bterminal/bterminal/pkg/client"
)

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Attach the local terminal to a session",
	Long: `Attach streams the session's output to this terminal and sends keystrokes
to its shell. The session keeps running after you detach; it ends when its
shell exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		create, _ := cmd.Flags().GetBool("create")
		return runAttach(cmd.Context(), args[0], create)
	},
}

func init() {
	attachCmd.Flags().Bool("create", false, "Create the session first if it does not exist")
	rootCmd.AddCommand(attachCmd)
}

func runAttach(ctx context.Context, id string, create bool) error {
	c := newClient()
	if create {
		if _, err := c.CreateSession(ctx, id); err != nil && !sessionExists(ctx, c, id) {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	t, err := c.Attach(ctx, id)
	if err != nil {
		return err
	}
	defer t.Close()

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("setting terminal to raw mode: %w", err)
		}
		defer term.Restore(stdinFd, oldState)

		sendSize(t, int(os.Stdout.Fd()))
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
		go func() {
			for range winch {
				sendSize(t, int(os.Stdout.Fd()))
			}
		}()
	}

	go pumpInput(t, os.Stdin)

	if err := t.ReadLoop(os.Stdout, nil); err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, "\r\n[session ended]\r\n")
	return nil
}

func sendSize(t *client.Terminal, fd int) {
	cols, rows, err := term.GetSize(fd)
	if err != nil || rows <= 0 || cols <= 0 {
		return
	}
	_ = t.Resize(uint16(rows), uint16(cols))
}

func pumpInput(t *client.Terminal, r io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := t.SendInput(string(buf[:n])); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// sessionExists lets attach --create proceed when the create failed only
// because the session is already running.
func sessionExists(ctx context.Context, c *client.Client, id string) bool {
	_, err := c.GetSession(ctx, id)
	return err == nil
}
