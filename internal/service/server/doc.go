// Package server runs the alarm-notifier service.
//
// It builds the information model from settings, starts one notifier per
// alarm, accepts alarm events over gRPC, and records every event in the
// retained alarms store.
package server
