package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bterminal/bterminal/pkg/client"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "bterm",
	Short: "bterminal CLI - manage and attach to shared shell sessions",
	Long: `bterm talks to a bterminal server.

It lists, creates and deletes shell sessions, and attaches the local terminal
to a session so several people can share the same shell.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("BTERMINAL_URL", "http://localhost:3000"), "bterminal server base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("BTERMINAL_API_KEY"), "bterminal API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	return client.NewClient(baseURL, apiKey)
}
