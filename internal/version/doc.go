// Package version exposes build metadata for alarm-notifier.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. Short and Full render the version string for CLI output and logs.
package version
