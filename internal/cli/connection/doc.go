// Package connection provides HTTP connectivity for the DotVault CLI.
//
// The client speaks the server's JSON envelope protocol: every response
// wraps its payload in a code/message/data envelope, and errors carry a
// machine-readable code. ParseResponse unwraps the envelope so commands
// only deal with payload types.
package connection
