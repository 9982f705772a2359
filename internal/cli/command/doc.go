// Package command provides CLI command definitions for DotVault.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command and global flags
//   - token.go: Token subcommand group
//   - transfer.go: Transfer ceremony commands, including a local demo
//   - apikey.go: API key subcommand group
//   - system.go: System subcommand group
//
// Commands follow a consistent pattern of parsing flags, calling the
// server's HTTP API, and formatting output.
package command
