// Package smtp sends alarm emails through an SMTP server.
//
// Messages are queued and delivered by a single mailer goroutine that keeps
// the connection open between messages and closes it after an idle timeout.
package smtp
