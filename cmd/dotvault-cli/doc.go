// Package main provides the entry point for dotvault-cli.
//
// The CLI tool provides command-line access to a DotVault server for:
//
//   - Token management (provision, list, get, history, retire)
//   - Transfer operations, including a full ceremony demo against a
//     simulated card
//   - API key management (create, list, disable, rotate, delete)
//   - System administration (status, sweep, audit, backup)
//
// Usage:
//
//	dotvault-cli [command] [flags]
//	dotvault-cli token list --output json
//	dotvault-cli --server localhost:5080 system health
//
// Credentials come from the --api-key-id/--api-key flags or the
// DOTVAULT_API_KEY_ID and DOTVAULT_API_KEY environment variables.
package main
