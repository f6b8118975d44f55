// Package events is the in-process alarm event subscription facility.
//
// Observers subscribe to the state changes of one alarm and receive them
// one at a time. Subscriptions are released through an idempotent
// Registration handle.
package events
