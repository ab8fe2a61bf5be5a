// Package events defines the alert events emitted by the recovery policy
// and the emitter that dispatches them to registered handlers. Each handler
// runs inside its own failure boundary so one misbehaving handler cannot
// suppress the others or interrupt the caller.
package events
