// Package events implements the gRPC transport for alarm state-change events.
//
// The AlarmEventService has a single unary method, PublishEvent, that takes a
// google.protobuf.Struct describing one event. The service descriptor is
// declared by hand since the payload only uses well-known types.
package events
