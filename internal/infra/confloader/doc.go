// Package confloader merges DotVault configuration from struct
// defaults, an optional YAML file, and DOTVAULT_-prefixed environment
// variables, with a file watcher for hot reload of the settings that
// support it.
//
// Priority, highest to lowest: environment, file, defaults.
package confloader
