// Package cmd implements the command-line interface for google-service.
//
// This package provides the following commands:
//   - serve: Start the credential broker HTTP API, the MCP server, and the metrics server
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
