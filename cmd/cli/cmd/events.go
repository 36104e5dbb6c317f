package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bterminal/bterminal/pkg/types"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow session lifecycle events",
	Long:  `Print a line for every session created or deleted until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := newClient().Events(ctx, func(ev types.SessionEvent) {
			fmt.Printf("%s  %-15s %s\n", time.Now().Format(time.RFC3339), ev.Type, ev.Data)
		})
		if err != nil {
			return fmt.Errorf("event stream failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
