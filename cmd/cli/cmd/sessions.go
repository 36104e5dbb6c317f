package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session", "s"},
	Short:   "Manage shell sessions",
	Long:    `Create, list, inspect, and delete shell sessions.`,
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		sessions, err := newClient().ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found")
			return nil
		}
		for _, s := range sessions {
			fmt.Println(s.ID)
		}
		return nil
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create [session-id]",
	Short: "Start a new session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		created, err := newClient().CreateSession(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		fmt.Printf("✓ Session created: %s\n", created.ID)
		return nil
	},
}

var sessionsGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		detail, err := newClient().GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(detail, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Session: %s\n", detail.ID)
		fmt.Printf("  Size: %dx%d\n", detail.Rows, detail.Cols)
		fmt.Printf("  Clients: %d\n", detail.Clients)
		fmt.Printf("  History: %d bytes\n", detail.HistoryBytes)
		fmt.Printf("  Created: %s\n", detail.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <session-id>",
	Aliases: []string{"rm", "kill"},
	Short:   "Kill a session's shell",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := newClient().DeleteSession(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}

		fmt.Printf("✓ Session %s deleted\n", args[0])
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent session lifetimes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		records, err := newClient().AuditLog(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tENDED")
		for _, rec := range records {
			ended := "-"
			if rec.EndedAt != nil {
				ended = rec.EndedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, rec.CreatedAt.Format(time.RFC3339), ended)
		}
		return w.Flush()
	},
}

func init() {
	sessionsGetCmd.Flags().Bool("json", false, "Output as JSON")
	auditCmd.Flags().Int("limit", 20, "Number of records to show")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsCreateCmd, sessionsGetCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd, auditCmd)
}
