// Package config defines the alarm-notifier settings and provides helpers to
// load, validate and save them in YAML format.
//
// The Config type holds the event ingress address, the retained alarms file,
// and the information model: users, senders and alarms with their
// EmailUser/EmailSender references.
package config
