// Package alarm contains core domain types for alarm notifications.
//
// It defines Subject (the watched alarm), Fields (the values carried by a
// state-change event) and Notification (the email composed on activation).
package alarm
