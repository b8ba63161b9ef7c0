package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the google-service application
var rootCmd = &cobra.Command{
	Use:   "google-service",
	Short: "Multi-tenant Google OAuth credential broker with an MCP Gmail tool",
	Long: `google-service brokers Google OAuth credentials for registered client
applications: it issues authorization URLs, completes the callback and
token exchange, persists user credentials, and refreshes them
transparently on retrieval.

It also runs an MCP (Model Context Protocol) server exposing a
send_gmail tool that sends mail with stored credentials.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "google-service version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
