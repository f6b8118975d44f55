// Package logsender is a dry-run email sender that writes emails to the log.
package logsender
