// Package retained implements persistence for retained alarm records.
//
// The FileRepository keeps the last known state of every alarm by name and
// stores it as JSON on disk, so that notifiers can recover the active state
// of their alarm across restarts.
package retained
