// Package store defines the persistence interfaces and shared record types
// used by the task pipeline and the recovery subsystem. Implementations live
// in internal/platform/postgres; in-memory fakes live next to the tests that
// use them.
package store
