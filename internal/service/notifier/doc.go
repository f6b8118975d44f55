// Package notifier sends an email when a watched alarm becomes active.
//
// A Notifier observes one alarm, detects the inactive to active edge and
// dispatches a notification to the user referenced by the alarm's EmailUser
// property through the sender referenced by its EmailSender property.
// Configuration problems are logged and only suppress the email; edge
// tracking is never interrupted.
package notifier
