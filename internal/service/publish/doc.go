// Package publish sends a single alarm event to a running alarm-notifier.
//
// It is the operator's tool to test a configured alarm end to end.
package publish
