// Package buildinfo reports the version, commit, and toolchain of the
// running binary. Release builds stamp the values through ldflags;
// plain builds fall back to the VCS metadata the Go runtime embeds.
package buildinfo
