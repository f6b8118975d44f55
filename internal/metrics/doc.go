// Package metrics exposes Prometheus counters for alarm notifications.
package metrics
